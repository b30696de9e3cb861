package change

import (
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

// Insert inserts a single row.
type Insert struct {
	SchemaName string
	TableName  string
	Columns    []Column
}

func (c *Insert) Name() string { return "insert" }

func (c *Insert) Load(n *node.Node, _ LoadContext) error {
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

func (c *Insert) Validate(database.Database) error {
	if err := required("insert", "tableName", c.TableName); err != nil {
		return err
	}

	return required("insert", "columns", columnNames(c.Columns))
}

func (c *Insert) Statements(db database.Database) ([]string, error) {
	names := make([]string, len(c.Columns))
	values := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
		values[i] = col.literal()
	}

	return []string{
		utils.NewSQLBuilder(db.Quoter()).
			Raw("INSERT INTO").
			QualifiedName(schemaFor(db, c.SchemaName), c.TableName).
			ColumnNames(names...).
			Values(values...).
			StringWithoutSemicolon(),
	}, nil
}

func (c *Insert) Description() string {
	return describe("insert", "tableName", c.TableName)
}

func (c *Insert) Dbms() []string { return nil }

func (c *Insert) CheckSum(v checksum.Version) checksum.CheckSum {
	parts := []string{canonical("insert", "schemaName", c.SchemaName, "tableName", c.TableName)}
	for _, col := range c.Columns {
		parts = append(parts, col.canonical())
	}

	return checksum.Compute(strings.Join(parts, "|"), v)
}
