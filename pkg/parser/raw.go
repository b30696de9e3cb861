package parser

import (
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

const (
	// RawID is the changeset id given to plain SQL files.
	RawID = "raw"

	// RawAuthor is the changeset author given to plain SQL files.
	RawAuthor = "includeAll"
)

// ParseRaw wraps the whole file in one changeset with a single sql change.
// Statements are split on the default delimiter and comments are kept.
func ParseRaw(file string, data []byte) (*node.Node, error) {
	sql := string(data)
	if strings.TrimSpace(sql) == "" {
		return nil, &changelog.ParseError{File: file, Message: "no SQL found"}
	}

	root := node.New(RootName, nil)
	cs := root.AddChild("changeSet", nil)
	cs.AddChild("id", RawID)
	cs.AddChild("author", RawAuthor)
	cs.AddChild("runInTransaction", true)

	change := cs.AddChild("sql", sql)
	change.AddChild("splitStatements", true)
	change.AddChild("stripComments", false)

	return root, nil
}
