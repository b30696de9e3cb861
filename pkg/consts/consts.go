package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// DefaultConfigFile is the project configuration file name
	DefaultConfigFile = "changekeeper.yaml"

	// DefaultChangeLog is the root changelog used when none is configured
	DefaultChangeLog = "db/changelog.yaml"

	// DefaultSearchPath is the directory includes are resolved against
	DefaultSearchPath = "."

	// DefaultDatabaseURL is used when no database is configured
	DefaultDatabaseURL = "sqlite://file:changekeeper.db"

	// DefaultHistoryTable is the table recording executed changesets
	DefaultHistoryTable = "DATABASECHANGELOG"

	// DefaultLockTable is the table guarding concurrent migrations
	DefaultLockTable = "DATABASECHANGELOGLOCK"

	// DefaultOfflineFile is the CSV history file used in offline mode
	DefaultOfflineFile = "databasechangelog.csv"

	// DefaultChecksumVersion is the checksum algorithm generation for new rows
	DefaultChecksumVersion = 9

	// DefaultLockWait bounds how long update waits for the migration lock
	DefaultLockWait = 5 * time.Minute

	// DefaultLockPoll is the interval between lock acquisition attempts
	DefaultLockPoll = 10 * time.Second

	// DefaultClickHouseImage is the sandbox container image
	DefaultClickHouseImage = "clickhouse/clickhouse-server:25.7"

	// Version is recorded in the LIQUIBASE column of the history table
	Version = "1.0.0"
)
