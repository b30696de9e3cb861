package precondition

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

const (
	Passed Status = iota
	Failed
	Errored
)

const (
	Run Action = iota
	Skip
	MarkRan
	Halt
)

const (
	PolicyHalt     Policy = "HALT"
	PolicyContinue Policy = "CONTINUE"
	PolicyMarkRan  Policy = "MARK_RAN"
	PolicyWarn     Policy = "WARN"
)

type (
	// Status classifies a Result.
	Status int

	// Action tells the caller what to do after evaluation.
	Action int

	// Policy is an onFail or onError setting.
	Policy string

	// Result is the outcome of a check.
	Result struct {
		Status  Status
		Message string
		Err     error
	}

	// Precondition is a single check or combinator.
	Precondition interface {
		Name() string
		Load(n *node.Node) error
		Check(ctx context.Context, env Env) Result
	}

	// History answers whether a changeset has already been recorded.
	History interface {
		HasRun(ctx context.Context, changeLog, id, author string) (bool, error)
	}

	// Env is everything checks may consult.
	Env struct {
		DB      database.Database
		History History

		// Property looks up a changelog parameter.
		Property func(name string) (any, bool)

		// ChangeLogPath is the default changeLogFile for changeSetExecuted.
		ChangeLogPath string
	}

	// Container is a preConditions block: an implicit AND plus policies.
	Container struct {
		OnFail         Policy
		OnError        Policy
		OnFailMessage  string
		OnErrorMessage string
		OnUpdateSQL    string
		Preconditions  []Precondition
	}

	// FailedError is returned when a failure is handled with HALT.
	FailedError struct {
		Message string
	}

	// ErrorError is returned when an error is handled with HALT.
	ErrorError struct {
		Message string
		Err     error
	}
)

var registry = map[string]func() Precondition{
	"and":                      func() Precondition { return &And{} },
	"or":                       func() Precondition { return &Or{} },
	"not":                      func() Precondition { return &Not{} },
	"dbms":                     func() Precondition { return &Dbms{} },
	"sqlCheck":                 func() Precondition { return &SQLCheck{} },
	"tableExists":              func() Precondition { return &TableExists{} },
	"columnExists":             func() Precondition { return &ColumnExists{} },
	"changeSetExecuted":        func() Precondition { return &ChangeSetExecuted{} },
	"changeLogPropertyDefined": func() Precondition { return &PropertyDefined{} },
}

func (e *FailedError) Error() string {
	return "precondition failed: " + e.Message
}

func (e *ErrorError) Error() string {
	return fmt.Sprintf("precondition error: %s", e.Message)
}

func (e *ErrorError) Cause() error  { return e.Err }
func (e *ErrorError) Unwrap() error { return e.Err }

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "errored"
	}
}

func (a Action) String() string {
	switch a {
	case Run:
		return "run"
	case Skip:
		return "skip"
	case MarkRan:
		return "mark-ran"
	default:
		return "halt"
	}
}

// Pass returns a passing result.
func Pass() Result { return Result{Status: Passed} }

// Fail returns a failing result.
func Fail(format string, args ...any) Result {
	return Result{Status: Failed, Message: fmt.Sprintf(format, args...)}
}

// Error returns an errored result.
func Error(err error) Result {
	return Result{Status: Errored, Message: err.Error(), Err: err}
}

// ParsePolicy reads an onFail/onError value. Blank yields HALT.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PolicyHalt, nil
	case PolicyHalt, PolicyContinue, PolicyMarkRan, PolicyWarn:
		return p, nil
	default:
		return "", errors.Errorf("unknown precondition policy: %s", s)
	}
}

// Register adds a precondition type.
func Register(name string, factory func() Precondition) {
	registry[name] = factory
}

// New creates an empty precondition of the named type.
func New(name string) (Precondition, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}

	return f(), true
}

// Names returns the registered precondition names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}

// Load builds a Container from a preConditions node.
func Load(n *node.Node) (*Container, error) {
	c := &Container{}

	var err error
	for name, dst := range map[string]*Policy{"onFail": &c.OnFail, "onError": &c.OnError} {
		raw, err := n.ChildString(name, "")
		if err != nil {
			return nil, err
		}

		if *dst, err = ParsePolicy(raw); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", name)
		}
	}

	if c.OnFailMessage, err = n.ChildString("onFailMessage", ""); err != nil {
		return nil, err
	}

	if c.OnErrorMessage, err = n.ChildString("onErrorMessage", ""); err != nil {
		return nil, err
	}

	if c.OnUpdateSQL, err = n.ChildString("onUpdateSQL", ""); err != nil {
		return nil, err
	}

	if c.Preconditions, err = loadNested(n); err != nil {
		return nil, err
	}

	return c, nil
}

func loadNested(n *node.Node) ([]Precondition, error) {
	var out []Precondition
	for _, child := range n.Children {
		p, ok := New(child.Name)
		if !ok {
			continue
		}

		if err := p.Load(child); err != nil {
			return nil, errors.Wrapf(err, "invalid %s precondition", child.Name)
		}

		out = append(out, p)
	}

	return out, nil
}

// Check evaluates every precondition; all must pass.
func (c *Container) Check(ctx context.Context, env Env) Result {
	return checkAll(ctx, env, c.Preconditions)
}

// Evaluate checks the container and applies its policies.
func (c *Container) Evaluate(ctx context.Context, env Env) (Action, error) {
	if c == nil {
		return Run, nil
	}

	r := c.Check(ctx, env)
	switch r.Status {
	case Failed:
		msg := firstNonEmpty(c.OnFailMessage, r.Message)
		return c.apply(ctx, c.OnFail, msg, &FailedError{Message: msg})
	case Errored:
		msg := firstNonEmpty(c.OnErrorMessage, r.Message)
		return c.apply(ctx, c.OnError, msg, &ErrorError{Message: msg, Err: r.Err})
	default:
		return Run, nil
	}
}

func (c *Container) apply(ctx context.Context, p Policy, msg string, haltErr error) (Action, error) {
	switch p {
	case PolicyContinue:
		slog.InfoContext(ctx, "Preconditions not met, skipping", "reason", msg)
		return Skip, nil
	case PolicyMarkRan:
		slog.InfoContext(ctx, "Preconditions not met, marking as ran", "reason", msg)
		return MarkRan, nil
	case PolicyWarn:
		slog.WarnContext(ctx, "Preconditions not met, continuing", "reason", msg)
		return Run, nil
	default:
		return Halt, haltErr
	}
}

func checkAll(ctx context.Context, env Env, list []Precondition) Result {
	for _, p := range list {
		if r := p.Check(ctx, env); r.Status != Passed {
			return r
		}
	}

	return Pass()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
