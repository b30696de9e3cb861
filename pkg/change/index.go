package change

import (
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// CreateIndex creates an index over one or more columns.
	CreateIndex struct {
		SchemaName string
		TableName  string
		IndexName  string
		Unique     bool
		Columns    []Column
	}

	// DropIndex drops an index.
	DropIndex struct {
		SchemaName string
		TableName  string
		IndexName  string
	}
)

func (c *CreateIndex) Name() string { return "createIndex" }

func (c *CreateIndex) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	if c.IndexName, err = str(n, "indexName"); err != nil {
		return err
	}

	if c.Unique, err = n.ChildBool("unique", false); err != nil {
		return err
	}

	c.Columns, err = loadColumns(n)
	return err
}

func (c *CreateIndex) Validate(db database.Database) error {
	if db.ShortName() == "clickhouse" {
		return &UnsupportedError{Change: "createIndex", Database: db.ShortName()}
	}

	if err := required("createIndex", "tableName", c.TableName, "indexName", c.IndexName); err != nil {
		return err
	}

	return required("createIndex", "columns", columnNames(c.Columns))
}

func (c *CreateIndex) Statements(db database.Database) ([]string, error) {
	kind := "INDEX"
	if c.Unique {
		kind = "UNIQUE INDEX"
	}

	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}

	schema := schemaFor(db, c.SchemaName)
	return []string{
		utils.NewSQLBuilder(db.Quoter()).
			Create(kind).
			Name(c.IndexName).
			On(schema, c.TableName).
			ColumnNames(names...).
			StringWithoutSemicolon(),
	}, nil
}

func (c *CreateIndex) Description() string {
	return describe("createIndex", "indexName", c.IndexName, "tableName", c.TableName)
}

func (c *CreateIndex) Dbms() []string { return nil }

func (c *CreateIndex) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("createIndex",
		"schemaName", c.SchemaName,
		"tableName", c.TableName,
		"indexName", c.IndexName,
		"unique", flag(c.Unique),
		"columns", columnNames(c.Columns),
	), v)
}

func (c *CreateIndex) Inverse() ([]Change, error) {
	return []Change{&DropIndex{SchemaName: c.SchemaName, TableName: c.TableName, IndexName: c.IndexName}}, nil
}

func (c *DropIndex) Name() string { return "dropIndex" }

func (c *DropIndex) Load(n *node.Node, _ LoadContext) error {
	var err error
	if c.SchemaName, err = str(n, "schemaName"); err != nil {
		return err
	}

	if c.TableName, err = str(n, "tableName"); err != nil {
		return err
	}

	c.IndexName, err = str(n, "indexName")
	return err
}

func (c *DropIndex) Validate(db database.Database) error {
	if db.ShortName() == "clickhouse" {
		return &UnsupportedError{Change: "dropIndex", Database: db.ShortName()}
	}

	return required("dropIndex", "indexName", c.IndexName)
}

func (c *DropIndex) Statements(db database.Database) ([]string, error) {
	return []string{
		utils.NewSQLBuilder(db.Quoter()).
			Drop("INDEX").
			QualifiedName(schemaFor(db, c.SchemaName), c.IndexName).
			StringWithoutSemicolon(),
	}, nil
}

func (c *DropIndex) Description() string {
	return describe("dropIndex", "indexName", c.IndexName, "tableName", c.TableName)
}

func (c *DropIndex) Dbms() []string { return nil }

func (c *DropIndex) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("dropIndex",
		"schemaName", c.SchemaName,
		"tableName", c.TableName,
		"indexName", c.IndexName,
	), v)
}
