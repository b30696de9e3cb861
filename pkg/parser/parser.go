package parser

import (
	"io/fs"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

// RootName is the name of the node every parser returns.
const RootName = "databaseChangeLog"

type (
	// Parser dispatches on the file extension. SQL files are sniffed for the
	// formatted header and fall back to a single raw changeset.
	//
	// Example usage:
	//
	//	p := parser.New()
	//	if p.Supports("db/changelog.xml") {
	//		root, err := p.Parse(fsys, "db/changelog.xml")
	//	}
	Parser struct{}

	parseFunc func(file string, data []byte) (*node.Node, error)
)

var (
	_ changelog.Parser = (*Parser)(nil)

	byExtension = map[string]parseFunc{
		".yaml": ParseYAML,
		".yml":  ParseYAML,
		".json": ParseYAML,
		".xml":  ParseXML,
		".sql":  ParseSQL,
	}
)

// New returns a Parser for every supported format.
func New() *Parser {
	return &Parser{}
}

// Supports reports whether the extension of file is known.
func (p *Parser) Supports(file string) bool {
	_, ok := byExtension[strings.ToLower(path.Ext(file))]
	return ok
}

// Parse reads file from fsys and parses it according to its extension.
func (p *Parser) Parse(fsys fs.FS, file string) (*node.Node, error) {
	fn, ok := byExtension[strings.ToLower(path.Ext(file))]
	if !ok {
		return nil, &changelog.ParseError{File: file, Message: "unknown changelog format"}
	}

	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", file)
	}

	return fn(file, data)
}

// ParseSQL parses a formatted SQL changelog when data carries the header, and
// a raw SQL file otherwise.
func ParseSQL(file string, data []byte) (*node.Node, error) {
	if IsFormatted(data) {
		return ParseFormatted(file, data)
	}

	return ParseRaw(file, data)
}
