package change_test

import "github.com/pseudomuto/changekeeper/pkg/node"

// tree builds a node with children, mirroring what the parsers produce.
func tree(name string, value any, children ...*node.Node) *node.Node {
	n := node.New(name, value)
	for _, c := range children {
		n.Append(c)
	}

	return n
}

func leaf(name string, value any) *node.Node {
	return node.New(name, value)
}

func column(attrs ...*node.Node) *node.Node {
	return tree("column", nil, attrs...)
}
