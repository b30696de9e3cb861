package precondition

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

type (
	// And passes when every nested precondition passes.
	And struct {
		Nested []Precondition
	}

	// Or passes when any nested precondition passes.
	Or struct {
		Nested []Precondition
	}

	// Not passes when no nested precondition passes.
	Not struct {
		Nested []Precondition
	}

	// Dbms passes when the target database is in the type list.
	Dbms struct {
		Type []string
	}

	// SQLCheck runs a query and compares its single value to ExpectedResult.
	SQLCheck struct {
		ExpectedResult string
		SQL            string
	}

	// TableExists passes when the table is present.
	TableExists struct {
		SchemaName string
		TableName  string
	}

	// ColumnExists passes when the column is present on the table.
	ColumnExists struct {
		SchemaName string
		TableName  string
		ColumnName string
	}

	// ChangeSetExecuted passes when the changeset is recorded in history.
	ChangeSetExecuted struct {
		ChangeLogFile string
		ID            string
		Author        string
	}

	// PropertyDefined passes when a changelog parameter is set, optionally
	// to a specific value.
	PropertyDefined struct {
		Property string
		Value    string
	}
)

func (*And) Name() string               { return "and" }
func (*Or) Name() string                { return "or" }
func (*Not) Name() string               { return "not" }
func (*Dbms) Name() string              { return "dbms" }
func (*SQLCheck) Name() string          { return "sqlCheck" }
func (*TableExists) Name() string       { return "tableExists" }
func (*ColumnExists) Name() string      { return "columnExists" }
func (*ChangeSetExecuted) Name() string { return "changeSetExecuted" }
func (*PropertyDefined) Name() string   { return "changeLogPropertyDefined" }

func (p *And) Load(n *node.Node) (err error) {
	p.Nested, err = loadNested(n)
	return err
}

func (p *And) Check(ctx context.Context, env Env) Result {
	return checkAll(ctx, env, p.Nested)
}

func (p *Or) Load(n *node.Node) (err error) {
	p.Nested, err = loadNested(n)
	return err
}

func (p *Or) Check(ctx context.Context, env Env) Result {
	if len(p.Nested) == 0 {
		return Pass()
	}

	var msgs []string
	for _, nested := range p.Nested {
		r := nested.Check(ctx, env)
		if r.Status != Failed {
			return r
		}
		msgs = append(msgs, r.Message)
	}

	return Fail("%s", strings.Join(msgs, "; "))
}

func (p *Not) Load(n *node.Node) (err error) {
	p.Nested, err = loadNested(n)
	return err
}

func (p *Not) Check(ctx context.Context, env Env) Result {
	for _, nested := range p.Nested {
		r := nested.Check(ctx, env)
		switch r.Status {
		case Passed:
			return Fail("not precondition failed: %s passed", nested.Name())
		case Errored:
			return r
		}
	}

	return Pass()
}

func (p *Dbms) Load(n *node.Node) error {
	raw, err := n.ChildString("type", "")
	if err != nil {
		return err
	}

	p.Type = selector.SplitDatabases(raw)
	if len(p.Type) == 0 {
		return &node.Error{Path: n.Path(), Message: "type is required"}
	}

	return nil
}

func (p *Dbms) Check(_ context.Context, env Env) Result {
	name := env.DB.ShortName()
	if !selector.DatabaseMatches(p.Type, name, true) {
		return Fail("DBMS precondition failed: expected %s, got %s", strings.Join(p.Type, ","), name)
	}

	return Pass()
}

func (p *SQLCheck) Load(n *node.Node) (err error) {
	if p.ExpectedResult, err = n.ChildString("expectedResult", ""); err != nil {
		return err
	}

	if p.SQL, err = n.ChildString("sql", ""); err != nil {
		return err
	}

	if p.SQL == "" {
		if s, ok := n.Value.(string); ok {
			p.SQL = s
		}
	}

	if strings.TrimSpace(p.SQL) == "" {
		return &node.Error{Path: n.Path(), Message: "sql is required"}
	}

	return nil
}

func (p *SQLCheck) Check(ctx context.Context, env Env) Result {
	rows, err := env.DB.Query(ctx, strings.TrimSuffix(strings.TrimSpace(p.SQL), ";"))
	if err != nil {
		return Error(errors.Wrap(err, "sqlCheck query failed"))
	}

	var got string
	switch {
	case len(rows) == 0:
		got = ""
	case len(rows) > 1 || len(rows[0]) != 1:
		return Error(errors.Errorf("sqlCheck expected a single value, got %d row(s)", len(rows)))
	default:
		for _, v := range rows[0] {
			got = stringify(v)
		}
	}

	if got != p.ExpectedResult {
		return Fail("sqlCheck failed: expected %q, got %q", p.ExpectedResult, got)
	}

	return Pass()
}

func (p *TableExists) Load(n *node.Node) (err error) {
	if p.SchemaName, err = n.ChildString("schemaName", ""); err != nil {
		return err
	}

	if p.TableName, err = n.ChildString("tableName", ""); err != nil {
		return err
	}

	if p.TableName == "" {
		return &node.Error{Path: n.Path(), Message: "tableName is required"}
	}

	return nil
}

func (p *TableExists) Check(ctx context.Context, env Env) Result {
	ok, err := env.DB.TableExists(ctx, p.SchemaName, p.TableName)
	if err != nil {
		return Error(err)
	}

	if !ok {
		return Fail("table %s does not exist", qualified(p.SchemaName, p.TableName))
	}

	return Pass()
}

func (p *ColumnExists) Load(n *node.Node) (err error) {
	if p.SchemaName, err = n.ChildString("schemaName", ""); err != nil {
		return err
	}

	if p.TableName, err = n.ChildString("tableName", ""); err != nil {
		return err
	}

	if p.ColumnName, err = n.ChildString("columnName", ""); err != nil {
		return err
	}

	if p.TableName == "" || p.ColumnName == "" {
		return &node.Error{Path: n.Path(), Message: "tableName and columnName are required"}
	}

	return nil
}

func (p *ColumnExists) Check(ctx context.Context, env Env) Result {
	cols, err := env.DB.Columns(ctx, p.SchemaName, p.TableName)
	if err != nil {
		return Error(err)
	}

	for _, c := range cols {
		if strings.EqualFold(c.Name, p.ColumnName) {
			return Pass()
		}
	}

	return Fail("column %s.%s does not exist", qualified(p.SchemaName, p.TableName), p.ColumnName)
}

func (p *ChangeSetExecuted) Load(n *node.Node) (err error) {
	if p.ChangeLogFile, err = n.ChildString("changeLogFile", ""); err != nil {
		return err
	}

	if p.ID, err = n.ChildString("id", ""); err != nil {
		return err
	}

	if p.Author, err = n.ChildString("author", ""); err != nil {
		return err
	}

	if p.ID == "" || p.Author == "" {
		return &node.Error{Path: n.Path(), Message: "id and author are required"}
	}

	return nil
}

func (p *ChangeSetExecuted) Check(ctx context.Context, env Env) Result {
	if env.History == nil {
		return Error(errors.New("changeSetExecuted requires a history service"))
	}

	file := p.ChangeLogFile
	if file == "" {
		file = env.ChangeLogPath
	}

	ran, err := env.History.HasRun(ctx, file, p.ID, p.Author)
	if err != nil {
		return Error(err)
	}

	if !ran {
		return Fail("changeSet %s::%s::%s has not been executed", file, p.ID, p.Author)
	}

	return Pass()
}

func (p *PropertyDefined) Load(n *node.Node) (err error) {
	if p.Property, err = n.ChildString("property", ""); err != nil {
		return err
	}

	if p.Value, err = n.ChildString("value", ""); err != nil {
		return err
	}

	if p.Property == "" {
		return &node.Error{Path: n.Path(), Message: "property is required"}
	}

	return nil
}

func (p *PropertyDefined) Check(_ context.Context, env Env) Result {
	if env.Property == nil {
		return Fail("changelog property %s is not defined", p.Property)
	}

	v, ok := env.Property(p.Property)
	if !ok {
		return Fail("changelog property %s is not defined", p.Property)
	}

	if p.Value != "" && stringify(v) != p.Value {
		return Fail("expected changelog property %s to be %q, got %q", p.Property, p.Value, stringify(v))
	}

	return Pass()
}

func qualified(schema, table string) string {
	if schema == "" {
		return table
	}

	return schema + "." + table
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

