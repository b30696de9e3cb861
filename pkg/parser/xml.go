package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

// ParseXML parses an XML changelog. Elements become nodes named by their
// local name, attributes become leaf children and trimmed text becomes the
// node value. Namespace declarations and schema locations are dropped.
func ParseXML(file string, data []byte) (*node.Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		root  *node.Node
		stack []*node.Node
		texts []*strings.Builder
	)

	for {
		line, _ := dec.InputPos()

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return nil, &changelog.ParseError{File: file, Line: se.Line, Message: se.Msg}
			}

			return nil, &changelog.ParseError{File: file, Line: line, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := node.New(t.Name.Local, nil)
			for _, attr := range t.Attr {
				if attr.Name.Space != "" || attr.Name.Local == "xmlns" {
					continue
				}
				n.AddChild(attr.Name.Local, attr.Value)
			}

			switch {
			case len(stack) > 0:
				stack[len(stack)-1].Append(n)
			case root != nil:
				return nil, &changelog.ParseError{File: file, Line: line, Message: "multiple root elements"}
			case n.Name != RootName:
				return nil, &changelog.ParseError{
					File:    file,
					Line:    line,
					Message: fmt.Sprintf("expected root element %s, got %s", RootName, n.Name),
				}
			default:
				root = n
			}

			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			if text := strings.TrimSpace(texts[len(texts)-1].String()); text != "" {
				n.Value = text
			}

			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}

	if root == nil {
		return nil, &changelog.ParseError{File: file, Message: fmt.Sprintf("missing %s element", RootName)}
	}

	return root, nil
}
