package change

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

type (
	// Change is a single operation within a changeset.
	Change interface {
		// Name is the node name the change is loaded from, e.g. "createTable".
		Name() string

		// Load populates the change from its parsed node.
		Load(n *node.Node, lc LoadContext) error

		// Validate reports problems that prevent the change from running on db.
		Validate(db database.Database) error

		// Statements renders the SQL for db, without terminating semicolons.
		Statements(db database.Database) ([]string, error)

		// Description is the short summary stored in the history table.
		Description() string

		// Dbms lists the databases the change is restricted to. Empty means all.
		Dbms() []string

		// CheckSum hashes the semantic content of the change.
		CheckSum(v checksum.Version) checksum.CheckSum
	}

	// Inverter is implemented by changes that can be rolled back without an
	// explicit rollback block.
	Inverter interface {
		Inverse() ([]Change, error)
	}

	// Executor is implemented by changes that do something other than run SQL.
	Executor interface {
		Execute(ctx context.Context, db database.Database) error
	}

	// LoadContext carries what changes need from their changelog while loading.
	LoadContext struct {
		// FS resolves file references such as sqlFile paths.
		FS fs.FS

		// ChangeLogPath is the physical path of the owning changelog.
		ChangeLogPath string

		// Expand substitutes changelog parameters. Nil leaves text unchanged.
		Expand func(string) (string, error)
	}

	// StopError is returned when a stop change is executed.
	StopError struct {
		Message string
	}

	// UnsupportedError reports a change that cannot run on a database.
	UnsupportedError struct {
		Change   string
		Database string
	}

	outputKey struct{}
)

// ErrNoInverse is returned by Inverse for changes that cannot be undone
// automatically.
var ErrNoInverse = errors.New("no inverse available")

var registry = map[string]func() Change{
	"sql":         func() Change { return &SQL{} },
	"sqlFile":     func() Change { return &SQLFile{} },
	"createTable": func() Change { return &CreateTable{} },
	"dropTable":   func() Change { return &DropTable{} },
	"renameTable": func() Change { return &RenameTable{} },
	"addColumn":   func() Change { return &AddColumn{} },
	"dropColumn":  func() Change { return &DropColumn{} },
	"createIndex": func() Change { return &CreateIndex{} },
	"dropIndex":   func() Change { return &DropIndex{} },
	"insert":      func() Change { return &Insert{} },
	"tagDatabase": func() Change { return &TagDatabase{} },
	"output":      func() Change { return &Output{} },
	"empty":       func() Change { return &Empty{} },
	"stop":        func() Change { return &Stop{} },
}

func (e *StopError) Error() string {
	return "stop change encountered: " + e.Message
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported on %s", e.Change, e.Database)
}

// Register adds a change type. Registering an existing name replaces it.
func Register(name string, factory func() Change) {
	registry[name] = factory
}

// New creates an empty change of the named type.
func New(name string) (Change, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}

	return factory(), true
}

// IsChange reports whether name is a registered change type.
func IsChange(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered change names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}

// WithOutput directs output changes executed under ctx to w.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

func outputFrom(ctx context.Context) io.Writer {
	w, _ := ctx.Value(outputKey{}).(io.Writer)
	return w
}

// Execute runs c against db, applying visitors to every generated statement,
// and returns the SQL that was executed. Visitors are expected to be already
// filtered for db, contexts and labels; rollback selects those marked
// applyToRollback.
func Execute(ctx context.Context, db database.Database, c Change, visitors []*SQLVisitor, rollback bool) ([]string, error) {
	if ex, ok := c.(Executor); ok {
		return nil, ex.Execute(ctx, db)
	}

	stmts, err := c.Statements(db)
	if err != nil {
		return nil, err
	}

	executed := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		for _, v := range visitors {
			if !rollback || v.ApplyToRollback {
				stmt = v.Modify(stmt)
			}
		}

		if strings.TrimSpace(stmt) == "" {
			continue
		}

		slog.Debug("Executing statement", "change", c.Name(), "sql", stmt)
		if err := db.Exec(ctx, stmt); err != nil {
			return executed, err
		}

		executed = append(executed, stmt)
	}

	return executed, nil
}

// canonical renders a change name and ordered key/value pairs for hashing.
// Pairs with an empty value are omitted so adding an optional attribute does
// not alter existing checksums.
func canonical(name string, kv ...string) string {
	var sb strings.Builder
	sb.WriteString(name)

	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}

		sb.WriteString(";")
		sb.WriteString(kv[i])
		sb.WriteString("=")
		sb.WriteString(kv[i+1])
	}

	return sb.String()
}

func describe(name string, kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			parts = append(parts, kv[i]+"="+kv[i+1])
		}
	}

	if len(parts) == 0 {
		return name
	}

	return name + " " + strings.Join(parts, ", ")
}

// items returns the nodes named item found directly under n or under a
// wrapper child. YAML nests columns under "columns" while XML lists them
// directly.
func items(n *node.Node, wrapper, item string) []*node.Node {
	out := n.ChildrenNamed(item)
	for _, w := range n.ChildrenNamed(wrapper) {
		for _, c := range w.Children {
			if c.Name == item {
				out = append(out, c)
			}
		}
	}

	return out
}

func required(change string, kv ...string) error {
	var missing []string
	for i := 0; i+1 < len(kv); i += 2 {
		if strings.TrimSpace(kv[i+1]) == "" {
			missing = append(missing, kv[i])
		}
	}

	if len(missing) > 0 {
		return errors.Errorf("%s is missing required attributes: %s", change, strings.Join(missing, ", "))
	}

	return nil
}

func expand(lc LoadContext, s string) (string, error) {
	if lc.Expand == nil {
		return s, nil
	}

	return lc.Expand(s)
}

func str(n *node.Node, name string) (string, error) {
	return n.ChildString(name, "")
}
