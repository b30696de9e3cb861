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
	// CreateTable creates a table.
	CreateTable struct {
		SchemaName string
		TableName  string
		Columns    []Column
		Remarks    string
	}

	// DropTable drops a table.
	DropTable struct {
		SchemaName         string
		TableName          string
		CascadeConstraints bool
	}

	// RenameTable renames a table.
	RenameTable struct {
		SchemaName   string
		OldTableName string
		NewTableName string
	}
)

func (c *CreateTable) Name() string { return "createTable" }

func (c *CreateTable) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	if c.Remarks, err = str(n, "remarks"); err != nil {
		return err
	}

	c.Columns, err = loadColumns(n)
	return err
}

func (c *CreateTable) Validate(database.Database) error {
	if err := required("createTable", "tableName", c.TableName); err != nil {
		return err
	}

	if len(c.Columns) == 0 {
		return errors.New("createTable requires at least one column")
	}

	for _, col := range c.Columns {
		if err := required("createTable column", "name", col.Name, "type", col.Type); err != nil {
			return err
		}
	}

	return nil
}

func (c *CreateTable) Statements(db database.Database) ([]string, error) {
	d := db.Dialect()

	var pks []string
	for _, col := range c.Columns {
		if col.PrimaryKey {
			pks = append(pks, col.Name)
		}
	}

	inlinePK := len(pks) == 1 && d.ShortName() != "clickhouse"

	defs := make([]string, 0, len(c.Columns)+1)
	for _, col := range c.Columns {
		defs = append(defs, col.definition(d, db.Quoter(), inlinePK && col.PrimaryKey))
	}

	if len(pks) > 1 && d.ShortName() != "clickhouse" {
		quoted := make([]string, len(pks))
		for i, pk := range pks {
			quoted[i] = db.Quoter().Identifier(pk)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	sql := utils.NewSQLBuilder(db.Quoter()).
		Create("TABLE").
		QualifiedName(schemaFor(db, c.SchemaName), c.TableName).
		Columns(defs...).
		Raw(d.CreateTableSuffix(pks)).
		StringWithoutSemicolon()

	return []string{sql}, nil
}

func (c *CreateTable) Description() string {
	return describe("createTable", "tableName", c.TableName)
}

func (c *CreateTable) Dbms() []string { return nil }

func (c *CreateTable) CheckSum(v checksum.Version) checksum.CheckSum {
	parts := []string{canonical("createTable", "schemaName", c.SchemaName, "tableName", c.TableName)}
	for _, col := range c.Columns {
		parts = append(parts, col.canonical())
	}

	return checksum.Compute(strings.Join(parts, "|"), v)
}

func (c *CreateTable) Inverse() ([]Change, error) {
	return []Change{&DropTable{SchemaName: c.SchemaName, TableName: c.TableName}}, nil
}

func (c *DropTable) Name() string { return "dropTable" }

func (c *DropTable) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	c.CascadeConstraints, err = n.ChildBool("cascadeConstraints", false)
	return err
}

func (c *DropTable) Validate(database.Database) error {
	return required("dropTable", "tableName", c.TableName)
}

func (c *DropTable) Statements(db database.Database) ([]string, error) {
	b := utils.NewSQLBuilder(db.Quoter()).
		Drop("TABLE").
		QualifiedName(schemaFor(db, c.SchemaName), c.TableName)

	if c.CascadeConstraints && db.ShortName() == "postgresql" {
		b.Raw("CASCADE")
	}

	return []string{b.StringWithoutSemicolon()}, nil
}

func (c *DropTable) Description() string { return describe("dropTable", "tableName", c.TableName) }
func (c *DropTable) Dbms() []string      { return nil }

func (c *DropTable) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("dropTable",
		"schemaName", c.SchemaName,
		"tableName", c.TableName,
		"cascadeConstraints", flag(c.CascadeConstraints),
	), v)
}

func (c *RenameTable) Name() string { return "renameTable" }

func (c *RenameTable) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.OldTableName, err = str(n, "oldTableName"); err != nil {
		return err
	}

	c.NewTableName, err = str(n, "newTableName")
	return err
}

func (c *RenameTable) Validate(database.Database) error {
	return required("renameTable", "oldTableName", c.OldTableName, "newTableName", c.NewTableName)
}

func (c *RenameTable) Statements(db database.Database) ([]string, error) {
	q := db.Quoter()
	schema := schemaFor(db, c.SchemaName)

	if db.ShortName() == "clickhouse" {
		return []string{
			utils.NewSQLBuilder(q).Rename("TABLE").QualifiedName(schema, c.OldTableName).
				QualifiedTo(schema, c.NewTableName).StringWithoutSemicolon(),
		}, nil
	}

	return []string{
		utils.NewSQLBuilder(q).Alter("TABLE").QualifiedName(schema, c.OldTableName).
			Raw("RENAME").To(c.NewTableName).StringWithoutSemicolon(),
	}, nil
}

func (c *RenameTable) Description() string {
	return describe("renameTable", "newTableName", c.NewTableName, "oldTableName", c.OldTableName)
}

func (c *RenameTable) Dbms() []string { return nil }

func (c *RenameTable) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("renameTable",
		"schemaName", c.SchemaName,
		"oldTableName", c.OldTableName,
		"newTableName", c.NewTableName,
	), v)
}

func (c *RenameTable) Inverse() ([]Change, error) {
	return []Change{&RenameTable{
		SchemaName:   c.SchemaName,
		OldTableName: c.NewTableName,
		NewTableName: c.OldTableName,
	}}, nil
}

// schemaFor qualifies objects only on engines with schemas.
func schemaFor(db database.Database, schema string) string {
	if !db.SupportsSchemas() {
		return ""
	}

	return schema
}
