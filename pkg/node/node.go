package node

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// Node is a single element of a parsed changelog document.
	Node struct {
		Name     string
		Value    any
		Children []*Node

		parent *Node
	}

	// Error reports a structural or conversion problem at a specific node.
	Error struct {
		Path    string
		Message string
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("error parsing %s: %s", e.Path, e.Message)
}

// New returns a detached node with the given name and value.
func New(name string, value any) *Node {
	return &Node{Name: name, Value: value}
}

// Parent returns the node this one was appended to, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Path returns the slash separated chain of names from the root to this node.
func (n *Node) Path() string {
	parts := []string{}
	for cur := n; cur != nil; cur = cur.parent {
		parts = append([]string{cur.Name}, parts...)
	}

	return strings.Join(parts, "/")
}

// AddChild creates a child with the given name and value and returns it.
func (n *Node) AddChild(name string, value any) *Node {
	return n.Append(New(name, value))
}

// Append attaches an existing node as the last child and returns it.
func (n *Node) Append(child *Node) *Node {
	child.parent = n
	n.Children = append(n.Children, child)
	return child
}

// Remove detaches every direct child with the given name.
func (n *Node) Remove(name string) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Name != name {
			kept = append(kept, c)
		}
	}

	n.Children = kept
}

// HasChildren reports whether the node has any children.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0
}

// Child returns the single direct child with the given name. A missing child
// yields nil; more than one match is an error.
func (n *Node) Child(name string) (*Node, error) {
	var found *Node
	for _, c := range n.Children {
		if c.Name != name {
			continue
		}

		if found != nil {
			return nil, &Error{Path: n.Path(), Message: fmt.Sprintf("multiple nodes match %s", name)}
		}
		found = c
	}

	return found, nil
}

// ChildrenNamed returns every direct child with the given name, in order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}

	return out
}

// ChildValue returns the raw value of the named child, or nil.
func (n *Node) ChildValue(name string) (any, error) {
	c, err := n.Child(name)
	if err != nil || c == nil {
		return nil, err
	}

	return c.Value, nil
}

// ChildString returns the named child's value as a string, or def when the
// child is absent or has no value.
func (n *Node) ChildString(name, def string) (string, error) {
	c, err := n.Child(name)
	if err != nil {
		return "", err
	}

	if c == nil || c.Value == nil {
		return def, nil
	}

	return c.String(), nil
}

// ChildBool returns the named child's value as a bool, or def when absent.
func (n *Node) ChildBool(name string, def bool) (bool, error) {
	c, err := n.Child(name)
	if err != nil {
		return false, err
	}

	if c == nil || c.Value == nil {
		return def, nil
	}

	return c.Bool()
}

// ChildInt returns the named child's value as an int, or def when absent.
func (n *Node) ChildInt(name string, def int) (int, error) {
	c, err := n.Child(name)
	if err != nil {
		return 0, err
	}

	if c == nil || c.Value == nil {
		return def, nil
	}

	return c.Int()
}

// String renders the node value as text. Nil renders as the empty string.
func (n *Node) String() string {
	switch v := n.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Bool converts the node value to a bool.
func (n *Node) Bool() (bool, error) {
	switch v := n.Value.(type) {
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if !utils.IsBooleanValue(s) {
			return false, &Error{Path: n.Path(), Message: fmt.Sprintf("cannot convert %q to a boolean", v)}
		}
		return strings.EqualFold(s, "true"), nil
	default:
		return false, &Error{Path: n.Path(), Message: fmt.Sprintf("cannot convert %T to a boolean", v)}
	}
}

// Int converts the node value to an int.
func (n *Node) Int() (int, error) {
	switch v := n.Value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if !utils.IsNumericValue(s) {
			return 0, &Error{Path: n.Path(), Message: fmt.Sprintf("cannot convert %q to an integer", v)}
		}

		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.Wrapf(err, "error parsing %s", n.Path())
		}
		return i, nil
	default:
		return 0, &Error{Path: n.Path(), Message: fmt.Sprintf("cannot convert %T to an integer", v)}
	}
}

// Walk visits the node and all of its descendants depth first. Returning an
// error from fn stops the walk.
func (n *Node) Walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}

	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns a deep copy of the node without a parent.
func (n *Node) Clone() *Node {
	out := New(n.Name, n.Value)
	for _, c := range n.Children {
		out.Append(c.Clone())
	}

	return out
}
