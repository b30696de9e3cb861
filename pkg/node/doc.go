// Package node provides the format-neutral document tree that every changelog
// parser produces and the changelog loader consumes.
//
// A Node has a name, an optional scalar value and an ordered list of children.
// Attributes and nested elements are both represented as children, so an XML
// attribute `id="1"` and a YAML mapping entry `id: 1` produce the same tree:
//
//	changeSet
//	├── id = "1"
//	├── author = "bob"
//	└── changes
//	    └── createTable
//	        └── tableName = "person"
//
// Values are stored as produced by the parser (string, bool, int64, float64)
// and converted on read through the typed accessors:
//
//	id, err := n.ChildString("id", "")
//	runAlways, err := n.ChildBool("runAlways", false)
//
// Accessors report a conversion failure as *Error, naming the node path so the
// caller can surface it inside a parse error.
package node
