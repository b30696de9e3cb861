// Package cmd provides CLI commands for the changekeeper tool.
//
// Commands are constructors returning *cli.Command, registered in the fx
// "commands" group by Module. They share the *config.Config loaded for the
// project directory; per-command flags such as --url, --contexts and --labels
// override the configuration for that invocation only.
//
// # Available Commands
//
//   - init: Create changekeeper.yaml and a root changelog
//   - update, update-count, update-to-tag: Apply pending changesets
//   - rollback-count, rollback-to-tag: Undo applied changesets
//   - status, history, validate: Inspect the changelog and the database
//   - tag, tag-exists: Mark database states for rollback-to-tag
//   - changelog-sync, clear-checksums: Maintain the history table
//   - list-locks, release-locks: Inspect and clear the migration lock
//   - sandbox run|list|rm: Disposable ClickHouse servers
//
// # Global Options
//
//   - --dir, -d: Specify project directory (defaults to current directory)
//   - --config, -c: Configuration file (defaults to changekeeper.yaml)
//   - --log-level: Log level for the slog default logger
//
// # Example Usage
//
//	changekeeper init --format sql
//	changekeeper update --contexts prod
//	changekeeper status --verbose
//	changekeeper tag v1.2.0
//	changekeeper rollback-to-tag v1.1.0
//	changekeeper sandbox run --exit
package cmd
