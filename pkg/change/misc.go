package change

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
)

type (
	// TagDatabase tags the history row of the changeset that contains it.
	TagDatabase struct {
		Tag string
	}

	// Output writes a message when executed.
	Output struct {
		Message string
		Target  string
	}

	// Empty does nothing. It is used for changesets that exist only to be
	// tracked, and as the inverse of changes without database effect.
	Empty struct{}

	// Stop halts an update when reached.
	Stop struct {
		Message string
	}

	commenter interface {
		Comment(text string) error
	}
)

func (c *TagDatabase) Name() string { return "tagDatabase" }

func (c *TagDatabase) Load(n *node.Node, _ LoadContext) error {
	var err error
	c.Tag, err = str(n, "tag")
	return err
}

func (c *TagDatabase) Validate(database.Database) error {
	return required("tagDatabase", "tag", c.Tag)
}

// Statements is empty: the tag is written to the history row once the
// changeset has been recorded.
func (c *TagDatabase) Statements(database.Database) ([]string, error) { return nil, nil }

func (c *TagDatabase) Description() string { return describe("tagDatabase", "tag", c.Tag) }
func (c *TagDatabase) Dbms() []string      { return nil }

func (c *TagDatabase) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("tagDatabase", "tag", c.Tag), v)
}

func (c *TagDatabase) Inverse() ([]Change, error) {
	return []Change{&Empty{}}, nil
}

func (c *Output) Name() string { return "output" }

func (c *Output) Load(n *node.Node, _ LoadContext) error {
	var err error
	if s, ok := n.Value.(string); ok && strings.TrimSpace(s) != "" {
		c.Message = s
	} else if c.Message, err = str(n, "message"); err != nil {
		return err
	}

	c.Target, err = n.ChildString("target", "STDOUT")
	return err
}

func (c *Output) Validate(database.Database) error { return nil }

func (c *Output) Statements(database.Database) ([]string, error) { return nil, nil }

func (c *Output) Execute(ctx context.Context, db database.Database) error {
	if cm, ok := db.(commenter); ok {
		return cm.Comment(c.Message)
	}

	switch strings.ToUpper(c.Target) {
	case "WARN":
		slog.WarnContext(ctx, c.Message)
	case "INFO":
		slog.InfoContext(ctx, c.Message)
	case "DEBUG":
		slog.DebugContext(ctx, c.Message)
	default:
		w := outputFrom(ctx)
		if w == nil {
			slog.InfoContext(ctx, c.Message)
			return nil
		}

		_, err := fmt.Fprintln(w, c.Message)
		return errors.Wrap(err, "failed to write output")
	}

	return nil
}

func (c *Output) Description() string { return "output" }
func (c *Output) Dbms() []string      { return nil }

func (c *Output) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("output", "message", c.Message, "target", c.Target), v)
}

func (c *Output) Inverse() ([]Change, error) { return []Change{&Empty{}}, nil }

func (c *Empty) Name() string                                   { return "empty" }
func (c *Empty) Load(*node.Node, LoadContext) error             { return nil }
func (c *Empty) Validate(database.Database) error               { return nil }
func (c *Empty) Statements(database.Database) ([]string, error) { return nil, nil }
func (c *Empty) Description() string                            { return "empty" }
func (c *Empty) Dbms() []string                                 { return nil }
func (c *Empty) Inverse() ([]Change, error)                     { return []Change{&Empty{}}, nil }

func (c *Empty) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute("empty", v)
}

func (c *Stop) Name() string { return "stop" }

func (c *Stop) Load(n *node.Node, _ LoadContext) error {
	var err error
	c.Message, err = n.ChildString("message", "Stop command in changelog file")
	return err
}

func (c *Stop) Validate(database.Database) error               { return nil }
func (c *Stop) Statements(database.Database) ([]string, error) { return nil, nil }

func (c *Stop) Execute(context.Context, database.Database) error {
	return &StopError{Message: c.Message}
}

func (c *Stop) Description() string { return "stop" }
func (c *Stop) Dbms() []string      { return nil }

func (c *Stop) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(canonical("stop", "message", c.Message), v)
}
