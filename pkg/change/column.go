package change

import (
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

// Column is a column definition or value used by table, column and insert
// changes.
type Column struct {
	Name string
	Type string

	Value         string
	ValueNumeric  string
	ValueBoolean  string
	ValueDate     string
	ValueComputed string

	DefaultValue         string
	DefaultValueNumeric  string
	DefaultValueBoolean  string
	DefaultValueComputed string

	AutoIncrement bool
	PrimaryKey    bool
	NotNull       bool
	Unique        bool
	Remarks       string
}

func loadColumns(n *node.Node) ([]Column, error) {
	var cols []Column
	for _, cn := range items(n, "columns", "column") {
		col, err := loadColumn(cn)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	return cols, nil
}

func loadColumn(n *node.Node) (Column, error) {
	var (
		col Column
		err error
	)

	strs := map[string]*string{
		"name":                 &col.Name,
		"type":                 &col.Type,
		"value":                &col.Value,
		"valueNumeric":         &col.ValueNumeric,
		"valueBoolean":         &col.ValueBoolean,
		"valueDate":            &col.ValueDate,
		"valueComputed":        &col.ValueComputed,
		"defaultValue":         &col.DefaultValue,
		"defaultValueNumeric":  &col.DefaultValueNumeric,
		"defaultValueBoolean":  &col.DefaultValueBoolean,
		"defaultValueComputed": &col.DefaultValueComputed,
		"remarks":              &col.Remarks,
	}

	for name, dst := range strs {
		if *dst, err = str(n, name); err != nil {
			return col, err
		}
	}

	if col.AutoIncrement, err = n.ChildBool("autoIncrement", false); err != nil {
		return col, err
	}

	cn, err := n.Child("constraints")
	if err != nil || cn == nil {
		return col, err
	}

	if col.PrimaryKey, err = cn.ChildBool("primaryKey", false); err != nil {
		return col, err
	}

	nullable, err := cn.ChildBool("nullable", true)
	if err != nil {
		return col, err
	}
	col.NotNull = !nullable

	col.Unique, err = cn.ChildBool("unique", false)
	return col, err
}

// literal renders the column's insert value.
func (c Column) literal() string {
	switch {
	case c.ValueComputed != "":
		return c.ValueComputed
	case c.ValueNumeric != "":
		return c.ValueNumeric
	case c.ValueBoolean != "":
		return strings.ToUpper(c.ValueBoolean)
	case c.ValueDate != "":
		return "'" + strings.ReplaceAll(c.ValueDate, "'", "''") + "'"
	default:
		return utils.SQLLiteral(c.Value)
	}
}

func (c Column) defaultLiteral() string {
	switch {
	case c.DefaultValueComputed != "":
		return c.DefaultValueComputed
	case c.DefaultValueNumeric != "":
		return c.DefaultValueNumeric
	case c.DefaultValueBoolean != "":
		return strings.ToUpper(c.DefaultValueBoolean)
	case c.DefaultValue != "":
		return "'" + strings.ReplaceAll(c.DefaultValue, "'", "''") + "'"
	default:
		return ""
	}
}

// definition renders the column for CREATE TABLE or ADD COLUMN. inlinePK
// marks a single-column primary key declared on the column itself.
func (c Column) definition(d database.Dialect, q utils.Quoter, inlinePK bool) string {
	notNull := c.NotNull || c.PrimaryKey
	parts := []string{q.Identifier(c.Name)}

	switch {
	case c.AutoIncrement && d.ShortName() == "postgresql":
		typ := "SERIAL"
		if strings.EqualFold(c.Type, "bigint") {
			typ = "BIGSERIAL"
		}
		parts = append(parts, typ)
	default:
		parts = append(parts, d.ColumnType(c.Type, !notNull))
	}

	if def := c.defaultLiteral(); def != "" {
		parts = append(parts, "DEFAULT", def)
	}

	if d.ShortName() == "clickhouse" {
		// Nullability is part of the ClickHouse type.
		return strings.Join(parts, " ")
	}

	if notNull && !inlinePK {
		parts = append(parts, "NOT NULL")
	}

	if inlinePK {
		parts = append(parts, "PRIMARY KEY")
		if c.AutoIncrement && d.ShortName() == "sqlite" {
			parts = append(parts, "AUTOINCREMENT")
		}
	}

	if c.Unique && !c.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}

	return strings.Join(parts, " ")
}

func (c Column) canonical() string {
	return canonical("column",
		"name", c.Name,
		"type", c.Type,
		"value", c.Value,
		"valueNumeric", c.ValueNumeric,
		"valueBoolean", c.ValueBoolean,
		"valueDate", c.ValueDate,
		"valueComputed", c.ValueComputed,
		"defaultValue", c.DefaultValue,
		"defaultValueNumeric", c.DefaultValueNumeric,
		"defaultValueBoolean", c.DefaultValueBoolean,
		"defaultValueComputed", c.DefaultValueComputed,
		"autoIncrement", flag(c.AutoIncrement),
		"primaryKey", flag(c.PrimaryKey),
		"notNull", flag(c.NotNull),
		"unique", flag(c.Unique),
	)
}

func flag(b bool) string {
	if b {
		return "true"
	}
	return ""
}

func columnNames(cols []Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	return strings.Join(names, ",")
}
