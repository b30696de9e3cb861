package config

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/fastcheck"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/lock"
	"github.com/pseudomuto/changekeeper/pkg/params"
	"github.com/pseudomuto/changekeeper/pkg/parser"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/pseudomuto/changekeeper/pkg/utils"
	"gopkg.in/yaml.v3"
)

type (
	// Database describes the target database connection.
	Database struct {
		// URL selects the driver by scheme (sqlite, postgres, postgresql,
		// clickhouse or tcp)
		URL string `yaml:"url"`

		// DefaultSchema is used for changes that do not name a schema
		DefaultSchema string `yaml:"default_schema,omitempty"`

		// HistoryTable names the table recording executed changesets
		HistoryTable string `yaml:"history_table,omitempty"`

		// LockTable names the table guarding concurrent migrations
		LockTable string `yaml:"lock_table,omitempty"`

		// TLS enables mutual TLS for ClickHouse connections
		TLS *database.TLSConfig `yaml:"tls,omitempty"`
	}

	// Offline switches history to a CSV file and renders SQL instead of
	// executing it.
	Offline struct {
		// File is the CSV history file
		File string `yaml:"file,omitempty"`

		// Dialect selects the SQL flavour to render (sqlite, postgresql or
		// clickhouse)
		Dialect string `yaml:"dialect,omitempty"`

		// Output receives the rendered SQL. Empty means stdout.
		Output string `yaml:"output,omitempty"`
	}

	// Lock controls how long operations wait for the migration lock.
	Lock struct {
		Wait time.Duration `yaml:"wait,omitempty"`
		Poll time.Duration `yaml:"poll,omitempty"`
	}

	// Sandbox configures the disposable ClickHouse container.
	Sandbox struct {
		Image string `yaml:"image,omitempty"`
	}

	// Config represents the changekeeper.yaml project configuration.
	Config struct {
		// ChangeLog is the root changelog, relative to SearchPath
		ChangeLog string `yaml:"changelog"`

		// SearchPath is the directory includes are resolved against
		SearchPath string `yaml:"search_path"`

		Database Database `yaml:"database"`
		Offline  *Offline `yaml:"offline,omitempty"`
		Lock     Lock     `yaml:"lock,omitempty"`
		Sandbox  Sandbox  `yaml:"sandbox,omitempty"`

		// Contexts is the default context filter
		Contexts string `yaml:"contexts,omitempty"`

		// Labels is the default label expression
		Labels string `yaml:"labels,omitempty"`

		// Parameters are global changelog parameters
		Parameters map[string]string `yaml:"parameters,omitempty"`

		// IncludeEnv exposes environment variables as parameters
		IncludeEnv bool `yaml:"include_env,omitempty"`

		// ExpressionPolicy is one of PRESERVE, EMPTY or ERROR
		ExpressionPolicy string `yaml:"expression_policy,omitempty"`

		Strict                    *bool `yaml:"strict,omitempty"`
		ErrorOnCircularIncludeAll *bool `yaml:"error_on_circular_include_all,omitempty"`

		// OnMissingInclude is one of FAIL, WARN or SKIP
		OnMissingInclude string `yaml:"on_missing_include,omitempty"`

		FastCheck           *bool `yaml:"fast_check,omitempty"`
		DuplicateChangeSets bool  `yaml:"duplicate_changesets,omitempty"`
	}
)

// LoadConfig parses a project configuration from the provided io.Reader.
//
// Unset fields take their defaults from the consts package. Policy names,
// the label expression and the offline dialect are validated.
//
// Example:
//
//	yamlData := `
//	changelog: db/changelog.yaml
//	database:
//	  url: postgres://localhost:5432/app
//	parameters:
//	  schema: app
//	`
//
//	cfg, err := config.LoadConfig(strings.NewReader(yamlData))
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Printf("Root changelog: %s\n", cfg.ChangeLog)
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal changekeeper config")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfigFile loads a project configuration from the specified file path.
// Relative paths in the file (search path, offline files) are kept as
// written and resolved against the working directory.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("changekeeper.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return LoadConfig(f)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.ChangeLog == "" {
		c.ChangeLog = consts.DefaultChangeLog
	}
	if c.SearchPath == "" {
		c.SearchPath = consts.DefaultSearchPath
	}
	if c.Database.URL == "" {
		c.Database.URL = consts.DefaultDatabaseURL
	}
	if c.Database.HistoryTable == "" {
		c.Database.HistoryTable = consts.DefaultHistoryTable
	}
	if c.Database.LockTable == "" {
		c.Database.LockTable = consts.DefaultLockTable
	}
	if c.Offline != nil && c.Offline.File == "" {
		c.Offline.File = consts.DefaultOfflineFile
	}
	if c.Lock.Wait == 0 {
		c.Lock.Wait = consts.DefaultLockWait
	}
	if c.Lock.Poll == 0 {
		c.Lock.Poll = consts.DefaultLockPoll
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = consts.DefaultClickHouseImage
	}
	if c.ExpressionPolicy == "" {
		c.ExpressionPolicy = string(params.PolicyPreserve)
	}
	if c.OnMissingInclude == "" {
		c.OnMissingInclude = string(changelog.MissingIncludeFail)
	}
	if c.Strict == nil {
		c.Strict = utils.Ptr(true)
	}
	if c.ErrorOnCircularIncludeAll == nil {
		c.ErrorOnCircularIncludeAll = utils.Ptr(true)
	}
	if c.FastCheck == nil {
		c.FastCheck = utils.Ptr(true)
	}
}

func (c *Config) validate() error {
	if _, err := params.ParsePolicy(c.ExpressionPolicy); err != nil {
		return errors.Wrap(err, "invalid expression_policy")
	}

	if _, err := changelog.ParseMissingIncludePolicy(c.OnMissingInclude); err != nil {
		return errors.Wrap(err, "invalid on_missing_include")
	}

	if _, err := selector.ParseExpression(c.Labels); err != nil {
		return errors.Wrap(err, "invalid labels")
	}

	if c.Offline != nil && c.Offline.Dialect != "" {
		if _, ok := database.DialectFor(c.Offline.Dialect); !ok {
			return errors.Errorf("invalid offline dialect %q", c.Offline.Dialect)
		}
	}

	return nil
}

// DatabaseConfig converts the database section for database.Open.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		URL:           c.Database.URL,
		DefaultSchema: c.Database.DefaultSchema,
		HistoryTable:  c.Database.HistoryTable,
		LockTable:     c.Database.LockTable,
		TLS:           c.Database.TLS,
	}
}

// IsOffline reports whether history is kept in a CSV file.
func (c *Config) IsOffline() bool { return c.Offline != nil }

// OpenDatabase connects to the configured database. In offline mode no
// connection is made; statements are rendered for the offline dialect to out.
func (c *Config) OpenDatabase(ctx context.Context, out io.Writer) (database.Database, error) {
	if !c.IsOffline() {
		return database.Open(ctx, c.DatabaseConfig())
	}

	name := c.Offline.Dialect
	if name == "" {
		name = database.SQLite.ShortName()
	}

	d, ok := database.DialectFor(name)
	if !ok {
		return nil, errors.Errorf("invalid offline dialect %q", name)
	}

	return database.NewOffline(d, c.DatabaseConfig(), out), nil
}

// Selection parses the configured contexts and labels. Non-empty arguments
// replace the configured values.
func (c *Config) Selection(contexts, labels string) (selector.Contexts, *selector.Expression, error) {
	if contexts == "" {
		contexts = c.Contexts
	}
	if labels == "" {
		labels = c.Labels
	}

	expr, err := selector.ParseExpression(labels)
	if err != nil {
		return selector.Contexts{}, nil, errors.Wrap(err, "invalid labels")
	}

	return selector.NewContexts(contexts), expr, nil
}

// BuildParameters builds the changelog parameters for db: the configured
// parameters become globals in sorted key order, followed by the selection.
func (c *Config) BuildParameters(db params.Database, contexts selector.Contexts, labels *selector.Expression) (*params.Parameters, error) {
	policy, err := params.ParsePolicy(c.ExpressionPolicy)
	if err != nil {
		return nil, errors.Wrap(err, "invalid expression_policy")
	}

	p := params.New(params.Config{
		Database:      db,
		IncludeEnv:    c.IncludeEnv,
		MissingPolicy: policy,
	})

	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		p.SetGlobal(k, c.Parameters[k])
	}

	p.SetContexts(contexts)
	p.SetLabels(labels)
	return p, nil
}

// ParseContext returns a changelog loader rooted at the search path.
func (c *Config) ParseContext(p *params.Parameters) (*changelog.ParseContext, error) {
	onMissing, err := changelog.ParseMissingIncludePolicy(c.OnMissingInclude)
	if err != nil {
		return nil, errors.Wrap(err, "invalid on_missing_include")
	}

	return &changelog.ParseContext{
		FS:                        os.DirFS(c.SearchPath),
		Parser:                    parser.New(),
		Params:                    p,
		Strict:                    *c.Strict,
		ErrorOnCircularIncludeAll: *c.ErrorOnCircularIncludeAll,
		OnMissingInclude:          onMissing,
	}, nil
}

// LoadChangeLog parses the root changelog for db with the given selection.
//
// Example:
//
//	contexts, labels, err := cfg.Selection("prod", "")
//	if err != nil {
//		return err
//	}
//
//	cl, err := cfg.LoadChangeLog(db, contexts, labels)
//	if err != nil {
//		return err
//	}
func (c *Config) LoadChangeLog(db params.Database, contexts selector.Contexts, labels *selector.Expression) (*changelog.DatabaseChangeLog, error) {
	p, err := c.BuildParameters(db, contexts, labels)
	if err != nil {
		return nil, err
	}

	pc, err := c.ParseContext(p)
	if err != nil {
		return nil, err
	}

	return pc.Load(path.Clean(filepath.ToSlash(c.ChangeLog)))
}

// History returns the history service for db: the CSV service in offline
// mode, otherwise the table backed one.
func (c *Config) History(db database.Database) history.Service {
	var cfg history.Config
	if c.IsOffline() {
		cfg.OfflineFile = c.Offline.File
	}

	return history.New(db, cfg)
}

// LockService returns the migration lock for db. Offline databases cannot
// hold a table lock, so they get a no-op.
func (c *Config) LockService(db database.Database) lock.Service {
	if c.IsOffline() {
		return &lock.NoOp{}
	}

	return lock.New(db, lock.Config{Wait: c.Lock.Wait, Poll: c.Lock.Poll})
}

// Executor wires an executor for db from the configuration.
func (c *Config) Executor(db database.Database) *executor.Executor {
	var fc *fastcheck.Service
	if *c.FastCheck && !c.IsOffline() {
		fc = fastcheck.New()
	}

	return executor.New(executor.Config{
		DB:              db,
		History:         c.History(db),
		Lock:            c.LockService(db),
		FastCheck:       fc,
		AllowDuplicates: c.DuplicateChangeSets,
	})
}
