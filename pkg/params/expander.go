package params

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Policy decides how an expression without a matching parameter is rendered.
type Policy string

const (
	// PolicyPreserve leaves the expression untouched. This is the default.
	PolicyPreserve Policy = "preserve"
	// PolicyEmpty replaces the expression with the empty string.
	PolicyEmpty Policy = "empty"
	// PolicyError fails the expansion.
	PolicyError Policy = "error"

	maxDepth = 64
)

// UnknownParameterError is returned under PolicyError when an expression
// cannot be resolved.
type UnknownParameterError struct {
	Expression string
	File       string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("could not resolve expression `${%s}` in file %s", e.Expression, e.File)
}

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPreserve, nil
	case PolicyPreserve, PolicyEmpty, PolicyError:
		return p, nil
	default:
		return "", errors.Errorf("unknown missing property policy: %s", s)
	}
}

type (
	expander struct {
		params   *Parameters
		policy   Policy
		escaping bool
	}

	reader struct {
		src []rune
		pos int
	}
)

func (r *reader) next() (rune, bool) {
	if r.pos >= len(r.src) {
		return 0, false
	}

	c := r.src[r.pos]
	r.pos++
	return c, true
}

func (r *reader) peek() (rune, bool) {
	if r.pos >= len(r.src) {
		return 0, false
	}

	return r.src[r.pos], true
}

func (e *expander) expand(s string, cl ChangeLog) (string, error) {
	return e.expandDepth(s, cl, 0)
}

func (e *expander) expandDepth(s string, cl ChangeLog, depth int) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	if depth > maxDepth {
		return "", errors.Errorf("parameter expansion exceeded %d levels, check for self-referencing properties", maxDepth)
	}

	return e.read(&reader{src: []rune(s)}, cl, false, depth)
}

// read consumes runes until the input ends or, when inside an expression, the
// closing brace. Inside an expression the raw (already nested-expanded) key is
// returned; an unterminated expression comes back prefixed with "${".
func (e *expander) read(r *reader, cl ChangeLog, inExpression bool, depth int) (string, error) {
	var sb strings.Builder

	for {
		c, ok := r.next()
		if !ok {
			break
		}

		switch {
		case c == '$':
			if n, ok := r.peek(); ok && n == '{' {
				r.next()

				expr, err := e.read(r, cl, true, depth)
				if err != nil {
					return "", err
				}

				out, err := e.resolve(expr, cl, depth)
				if err != nil {
					return "", err
				}

				sb.WriteString(out)
				continue
			}

			sb.WriteRune(c)
		case c == '}' && inExpression:
			return sb.String(), nil
		default:
			sb.WriteRune(c)
		}
	}

	if inExpression {
		return "${" + sb.String(), nil
	}

	return sb.String(), nil
}

func (e *expander) resolve(expr string, cl ChangeLog, depth int) (string, error) {
	if strings.HasPrefix(expr, "${") {
		return expr, nil
	}

	if e.escaping && strings.HasPrefix(expr, ":") {
		return "${" + strings.TrimSpace(expr[1:]) + "}", nil
	}

	key := strings.TrimSpace(expr)
	value, ok := e.params.Value(key, cl)
	if !ok || value == nil {
		switch e.policy {
		case PolicyEmpty:
			return "", nil
		case PolicyError:
			return "", &UnknownParameterError{Expression: expr, File: physicalPath(cl)}
		default:
			return "${" + expr + "}", nil
		}
	}

	out := fmt.Sprint(value)
	if s, isString := value.(string); isString {
		var err error
		if out, err = e.expandDepth(s, cl, depth+1); err != nil {
			return "", err
		}
	}

	e.params.substitutions = append(e.params.substitutions, Substitution{
		Key:   key,
		Value: out,
		File:  physicalPath(cl),
	})

	return out, nil
}

func physicalPath(cl ChangeLog) string {
	if cl == nil {
		return ""
	}

	return cl.PhysicalFilePath()
}
