package parser

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"gopkg.in/yaml.v3"
)

// ParseYAML parses a YAML or JSON changelog. The document must be a mapping
// with a databaseChangeLog key holding a list of single key mappings, one per
// changelog entry.
//
// Lists of single key mappings become children named by their key, lists of
// scalars become a []any value, and scalars keep their YAML type.
func ParseYAML(file string, data []byte) (*node.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &changelog.ParseError{File: file, Message: "empty changelog"}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &changelog.ParseError{File: file, Err: errors.Wrap(err, "invalid document")}
	}

	top := resolve(&doc)
	if top.Kind != yaml.MappingNode {
		return nil, &changelog.ParseError{File: file, Line: top.Line, Message: "expected a mapping at the top level"}
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != RootName {
			continue
		}

		body := resolve(top.Content[i+1])
		switch body.Kind {
		case yaml.SequenceNode, yaml.MappingNode:
			return convertYAML(RootName, body), nil
		case yaml.ScalarNode:
			if body.ShortTag() == "!!null" {
				return node.New(RootName, nil), nil
			}
		}

		return nil, &changelog.ParseError{
			File:    file,
			Line:    body.Line,
			Message: fmt.Sprintf("%s must be a list", RootName),
		}
	}

	return nil, &changelog.ParseError{File: file, Message: fmt.Sprintf("missing %s", RootName)}
}

func convertYAML(name string, y *yaml.Node) *node.Node {
	y = resolve(y)

	switch y.Kind {
	case yaml.MappingNode:
		n := node.New(name, nil)
		for i := 0; i+1 < len(y.Content); i += 2 {
			n.Append(convertYAML(y.Content[i].Value, y.Content[i+1]))
		}
		return n
	case yaml.SequenceNode:
		n := node.New(name, nil)

		var values []any
		for _, item := range y.Content {
			item = resolve(item)
			switch {
			case item.Kind == yaml.ScalarNode:
				values = append(values, scalar(item))
			case item.Kind == yaml.MappingNode && len(item.Content) == 2:
				n.Append(convertYAML(item.Content[0].Value, item.Content[1]))
			default:
				n.Append(convertYAML(name, item))
			}
		}

		if len(values) > 0 {
			n.Value = values
		}
		return n
	default:
		return node.New(name, scalar(y))
	}
}

func scalar(y *yaml.Node) any {
	switch y.ShortTag() {
	case "!!null":
		return nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := y.Decode(&v); err == nil {
			return v
		}
	}

	return y.Value
}

func resolve(y *yaml.Node) *yaml.Node {
	for {
		switch {
		case y.Kind == yaml.DocumentNode && len(y.Content) > 0:
			y = y.Content[0]
		case y.Kind == yaml.AliasNode && y.Alias != nil:
			y = y.Alias
		default:
			return y
		}
	}
}
