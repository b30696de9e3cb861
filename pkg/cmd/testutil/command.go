package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func init() {
	color.NoColor = true
}

// RunCommand executes a command with test context and returns what it wrote.
func RunCommand(t *testing.T, command *cli.Command, args ...string) (string, error) {
	t.Helper()
	return RunCommandWithContext(context.Background(), t, command, args...)
}

// RunCommandWithContext executes a command with a custom context
func RunCommandWithContext(ctx context.Context, t *testing.T, command *cli.Command, args ...string) (string, error) {
	t.Helper()

	out := new(bytes.Buffer)

	// Create a test CLI app
	app := &cli.Command{
		Name:      "test",
		Writer:    out,
		ErrWriter: out,
		Commands:  []*cli.Command{command},
	}

	// Prepend command name to args
	fullArgs := append([]string{"test", command.Name}, args...)

	err := app.Run(ctx, fullArgs)
	return out.String(), err
}
