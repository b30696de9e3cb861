package cmd

import "github.com/urfave/cli/v3"

const (
	flagChangeLog = "changelog"
	flagContexts  = "contexts"
	flagLabels    = "labels"
	flagURL       = "url"
	flagVerbose   = "verbose"
)

// connectionFlags are shared by every command that reads a changelog or
// talks to the database. Each one overrides the matching config setting.
func connectionFlags() []cli.Flag {
	return []cli.Flag{
		urlFlag(),
		&cli.StringFlag{
			Name:  flagChangeLog,
			Usage: "root changelog file, relative to the search path",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  flagContexts,
			Usage: "comma separated runtime contexts",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  flagLabels,
			Usage: "label expression (e.g. \"!slow and api\")",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	}
}

func urlFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flagURL,
		Usage:   "database url (sqlite://, postgres:// or clickhouse://)",
		Sources: cli.EnvVars("CHANGEKEEPER_URL"),
		Config: cli.StringConfig{
			TrimSpace: true,
		},
	}
}

func verboseFlag(usage string) cli.Flag {
	return &cli.BoolFlag{
		Name:    flagVerbose,
		Aliases: []string{"v"},
		Usage:   usage,
	}
}

func withFlags(base []cli.Flag, extra ...cli.Flag) []cli.Flag {
	return append(base, extra...)
}
