package params

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

const (
	// ExecutionChangeLogFile resolves to the file path of the loading changelog.
	ExecutionChangeLogFile = "LIQUIBASE_EXECUTION_CHANGELOG_FILE"
	// ExecutionChangeSetID resolves to the id of the changeset being loaded.
	ExecutionChangeSetID = "LIQUIBASE_EXECUTION_CHANGESET_ID"
	// ExecutionChangeSetAuthor resolves to the author of the changeset being loaded.
	ExecutionChangeSetAuthor = "LIQUIBASE_EXECUTION_CHANGESET_AUTHOR"
)

type (
	// ChangeLog is the view of a changelog that parameter lookup needs.
	ChangeLog interface {
		FilePath() string
		LogicalFilePath() string
		PhysicalFilePath() string
		CurrentChangeSetNode() *node.Node
	}

	// Database describes the target database facts exposed as `database.*`
	// parameters.
	Database interface {
		ShortName() string
		ProductName() string
		DefaultSchemaName() string
		DefaultCatalogName() string
		HistoryTableName() string
		LockTableName() string
		LineComment() string
		CurrentDateTimeFunction() string
		SupportsSchemas() bool
	}

	// Config controls construction of a Parameters store.
	Config struct {
		// Database seeds the database.* parameters and the database filter.
		Database Database

		// IncludeEnv adds every environment variable as a global parameter.
		IncludeEnv bool

		// MissingPolicy decides what happens to unresolvable expressions.
		MissingPolicy Policy

		// Escaping enables the `${:name}` escape form.
		Escaping bool
	}

	// Filter restricts which parameters are eligible during lookup.
	Filter struct {
		Database string
		Contexts selector.Contexts
		Labels   *selector.Expression
	}

	// Substitution records a resolved expression.
	Substitution struct {
		Key   string
		Value string
		File  string
	}

	// Parameters is the parameter store for a single run.
	Parameters struct {
		global        []*parameter
		local         map[string][]*parameter
		filter        Filter
		expander      *expander
		substitutions []Substitution
	}

	parameter struct {
		key       string
		value     any
		contexts  *selector.Expression
		labels    selector.Labels
		databases []string
	}
)

// New creates a parameter store seeded according to cfg.
func New(cfg Config) *Parameters {
	p := &Parameters{local: make(map[string][]*parameter)}
	p.expander = &expander{params: p, policy: cfg.MissingPolicy, escaping: cfg.Escaping}

	if cfg.IncludeEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				p.global = append(p.global, &parameter{key: k, value: v})
			}
		}
	}

	if db := cfg.Database; db != nil {
		schemaPrefix := ""
		if s := strings.TrimSpace(db.DefaultSchemaName()); s != "" {
			schemaPrefix = "." + s
		}

		p.SetGlobal("database.currentDateTimeFunction", db.CurrentDateTimeFunction())
		p.SetGlobal("database.databaseChangeLogLockTableName", db.LockTableName())
		p.SetGlobal("database.databaseChangeLogTableName", db.HistoryTableName())
		p.SetGlobal("database.databaseProductName", db.ProductName())
		p.SetGlobal("database.defaultCatalogName", db.DefaultCatalogName())
		p.SetGlobal("database.defaultSchemaName", db.DefaultSchemaName())
		p.SetGlobal("database.defaultSchemaNamePrefix", schemaPrefix)
		p.SetGlobal("database.lineComment", db.LineComment())
		p.SetGlobal("database.supportsSchemas", db.SupportsSchemas())
		p.SetGlobal("database.typeName", db.ShortName())
		p.filter.Database = db.ShortName()
	}

	return p
}

// SetGlobal registers an unrestricted global parameter.
func (p *Parameters) SetGlobal(key string, value any) {
	p.global = append(p.global, &parameter{key: key, value: value})
}

// Set registers a parameter. contexts is a context expression, labels and
// databases are comma separated lists. Local parameters require a changelog.
func (p *Parameters) Set(key string, value any, contexts, labels, databases string, global bool, cl ChangeLog) error {
	expr, err := selector.ParseExpression(contexts)
	if err != nil {
		return errors.Wrapf(err, "invalid context for parameter %s", key)
	}

	param := &parameter{
		key:       key,
		value:     value,
		contexts:  expr,
		labels:    selector.NewLabels(labels),
		databases: selector.SplitDatabases(databases),
	}

	if global {
		p.global = append(p.global, param)
		return nil
	}

	if cl == nil {
		return errors.Errorf("a changelog is required to set local parameter %s", key)
	}

	lk := cl.LogicalFilePath()
	p.local[lk] = append(p.local[lk], param)
	return nil
}

// Value returns the value of key as seen from cl, which may be nil.
func (p *Parameters) Value(key string, cl ChangeLog) (any, bool) {
	if cl != nil {
		if v, ok := executionValue(key, cl); ok {
			return v, true
		}

		list := p.local[cl.LogicalFilePath()]
		for i := len(list) - 1; i >= 0; i-- {
			if p.eligible(list[i], key) {
				return list[i].value, true
			}
		}
	}

	for _, param := range p.global {
		if p.eligible(param, key) {
			return param.value, true
		}
	}

	return nil, false
}

// HasValue reports whether key resolves from cl.
func (p *Parameters) HasValue(key string, cl ChangeLog) bool {
	_, ok := p.Value(key, cl)
	return ok
}

// Expand replaces every `${...}` expression in s.
func (p *Parameters) Expand(s string, cl ChangeLog) (string, error) {
	return p.expander.expand(s, cl)
}

// Filter returns the active lookup filter.
func (p *Parameters) Filter() Filter {
	return p.filter
}

// SetContexts sets the runtime contexts used to filter parameters.
func (p *Parameters) SetContexts(c selector.Contexts) {
	p.filter.Contexts = c
}

// SetLabels sets the runtime label expression used to filter parameters.
func (p *Parameters) SetLabels(l *selector.Expression) {
	p.filter.Labels = l
}

// SetDatabase sets the database short name used to filter parameters.
func (p *Parameters) SetDatabase(name string) {
	p.filter.Database = name
}

// Substitutions returns every expression resolved so far, in order.
func (p *Parameters) Substitutions() []Substitution {
	return append([]Substitution(nil), p.substitutions...)
}

func (p *Parameters) eligible(param *parameter, key string) bool {
	if !strings.EqualFold(param.key, key) {
		return false
	}

	f := p.filter
	if !f.Labels.Matches(param.labels) {
		return false
	}

	if !param.contexts.Matches(f.Contexts) {
		return false
	}

	return f.Database == "" || selector.DatabaseMatches(param.databases, f.Database, true)
}

func executionValue(key string, cl ChangeLog) (any, bool) {
	switch strings.ToUpper(key) {
	case ExecutionChangeLogFile:
		return cl.FilePath(), true
	case ExecutionChangeSetID:
		return currentChangeSetAttr(cl, "id"), true
	case ExecutionChangeSetAuthor:
		return currentChangeSetAttr(cl, "author"), true
	}

	return nil, false
}

func currentChangeSetAttr(cl ChangeLog, name string) any {
	n := cl.CurrentChangeSetNode()
	if n == nil {
		return nil
	}

	v, err := n.ChildString(name, "")
	if err != nil {
		return nil
	}

	return v
}
