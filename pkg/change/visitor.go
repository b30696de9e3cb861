package change

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

// SQLVisitor kinds.
const (
	VisitorReplace       = "replace"
	VisitorRegExpReplace = "regExpReplace"
	VisitorPrepend       = "prepend"
	VisitorAppend        = "append"
)

// SQLVisitor rewrites generated SQL before it is executed.
type SQLVisitor struct {
	Kind            string
	Replace         string
	With            string
	Value           string
	Dbms            []string
	Contexts        *selector.Expression
	Labels          selector.Labels
	ApplyToRollback bool

	re *regexp.Regexp
}

// LoadSQLVisitors reads the visitors declared by a modifySql node.
func LoadSQLVisitors(n *node.Node) ([]*SQLVisitor, error) {
	dbms, err := str(n, "dbms")
	if err != nil {
		return nil, err
	}

	rawContexts, err := n.ChildString("context", "")
	if err != nil {
		return nil, err
	}

	if rawContexts == "" {
		if rawContexts, err = n.ChildString("contextFilter", ""); err != nil {
			return nil, err
		}
	}

	contexts, err := selector.ParseExpression(rawContexts)
	if err != nil {
		return nil, errors.Wrap(err, "invalid modifySql context")
	}

	rawLabels, err := str(n, "labels")
	if err != nil {
		return nil, err
	}

	labels := selector.NewLabels(rawLabels)

	applyToRollback, err := n.ChildBool("applyToRollback", false)
	if err != nil {
		return nil, err
	}

	var out []*SQLVisitor
	for _, c := range n.Children {
		switch c.Name {
		case VisitorReplace, VisitorRegExpReplace, VisitorPrepend, VisitorAppend:
		default:
			continue
		}

		v := &SQLVisitor{
			Kind:            c.Name,
			Dbms:            selector.SplitDatabases(dbms),
			Contexts:        contexts,
			Labels:          labels,
			ApplyToRollback: applyToRollback,
		}

		if v.Replace, err = str(c, "replace"); err != nil {
			return nil, err
		}

		if v.With, err = str(c, "with"); err != nil {
			return nil, err
		}

		if v.Value, err = str(c, "value"); err != nil {
			return nil, err
		}

		if v.Kind == VisitorRegExpReplace {
			if v.re, err = regexp.Compile(v.Replace); err != nil {
				return nil, errors.Wrapf(err, "invalid regExpReplace pattern %q", v.Replace)
			}
		}

		out = append(out, v)
	}

	return out, nil
}

// Modify applies the visitor to sql.
func (v *SQLVisitor) Modify(sql string) string {
	switch v.Kind {
	case VisitorReplace:
		return strings.ReplaceAll(sql, v.Replace, v.With)
	case VisitorRegExpReplace:
		re := v.re
		if re == nil {
			re = regexp.MustCompile(v.Replace)
		}
		return re.ReplaceAllString(sql, v.With)
	case VisitorPrepend:
		return v.Value + sql
	case VisitorAppend:
		return sql + v.Value
	default:
		return sql
	}
}

// Applies reports whether the visitor is active for the database, runtime
// contexts and runtime label expression.
func (v *SQLVisitor) Applies(dbName string, contexts selector.Contexts, labels *selector.Expression) bool {
	return selector.DatabaseMatches(v.Dbms, dbName, true) &&
		v.Contexts.Matches(contexts) &&
		labels.Matches(v.Labels)
}

// CheckSum hashes the rewrite the visitor performs.
func (v *SQLVisitor) CheckSum(ver checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical(v.Kind,
		"replace", v.Replace,
		"with", v.With,
		"value", v.Value,
		"dbms", strings.Join(v.Dbms, ","),
		"applyToRollback", flag(v.ApplyToRollback),
	), ver)
}
