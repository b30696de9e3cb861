package change

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// AddColumn adds one or more columns to a table.
	AddColumn struct {
		SchemaName string
		TableName  string
		Columns    []Column
	}

	// DropColumn drops one or more columns from a table.
	DropColumn struct {
		SchemaName string
		TableName  string
		ColumnName string
		Columns    []Column
	}
)

func (c *AddColumn) Name() string { return "addColumn" }

func (c *AddColumn) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	c.Columns, err = loadColumns(n)
	return err
}

func (c *AddColumn) Validate(database.Database) error {
	if err := required("addColumn", "tableName", c.TableName); err != nil {
		return err
	}

	if len(c.Columns) == 0 {
		return errors.New("addColumn requires at least one column")
	}

	for _, col := range c.Columns {
		if err := required("addColumn column", "name", col.Name, "type", col.Type); err != nil {
			return err
		}
	}

	return nil
}

func (c *AddColumn) Statements(db database.Database) ([]string, error) {
	d := db.Dialect()

	stmts := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		stmts = append(stmts, utils.NewSQLBuilder(db.Quoter()).
			Alter("TABLE").
			QualifiedName(schemaFor(db, c.SchemaName), c.TableName).
			Raw("ADD COLUMN").
			Raw(col.definition(d, db.Quoter(), false)).
			StringWithoutSemicolon())
	}

	return stmts, nil
}

func (c *AddColumn) Description() string {
	return describe("addColumn", "tableName", c.TableName)
}

func (c *AddColumn) Dbms() []string { return nil }

func (c *AddColumn) CheckSum(v checksum.Version) checksum.CheckSum {
	parts := []string{canonical("addColumn", "schemaName", c.SchemaName, "tableName", c.TableName)}
	for _, col := range c.Columns {
		parts = append(parts, col.canonical())
	}

	return checksum.Compute(strings.Join(parts, "|"), v)
}

// Inverse drops the added columns in reverse order.
func (c *AddColumn) Inverse() ([]Change, error) {
	out := make([]Change, 0, len(c.Columns))
	for i := len(c.Columns) - 1; i >= 0; i-- {
		out = append(out, &DropColumn{
			SchemaName: c.SchemaName,
			TableName:  c.TableName,
			ColumnName: c.Columns[i].Name,
		})
	}

	return out, nil
}

func (c *DropColumn) Name() string { return "dropColumn" }

func (c *DropColumn) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	if c.ColumnName, err = str(n, "columnName"); err != nil {
		return err
	}

	c.Columns, err = loadColumns(n)
	return err
}

func (c *DropColumn) names() []string {
	var names []string
	if c.ColumnName != "" {
		names = append(names, c.ColumnName)
	}

	for _, col := range c.Columns {
		names = append(names, col.Name)
	}

	return names
}

func (c *DropColumn) Validate(database.Database) error {
	if err := required("dropColumn", "tableName", c.TableName); err != nil {
		return err
	}

	if len(c.names()) == 0 {
		return errors.New("dropColumn requires columnName or columns")
	}

	return nil
}

func (c *DropColumn) Statements(db database.Database) ([]string, error) {
	q := db.Quoter()

	var stmts []string
	for _, name := range c.names() {
		stmts = append(stmts, utils.NewSQLBuilder(q).
			Alter("TABLE").
			QualifiedName(schemaFor(db, c.SchemaName), c.TableName).
			Drop("COLUMN").
			Name(name).
			StringWithoutSemicolon())
	}

	return stmts, nil
}

func (c *DropColumn) Description() string {
	return describe("dropColumn", "columnName", strings.Join(c.names(), ","), "tableName", c.TableName)
}

func (c *DropColumn) Dbms() []string { return nil }

func (c *DropColumn) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("dropColumn",
		"schemaName", c.SchemaName,
		"tableName", c.TableName,
		"columns", strings.Join(c.names(), ","),
	), v)
}
