package executor

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/fastcheck"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/lock"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

type (
	// Executor runs changelog operations against a database.
	//
	// Every operation that writes history holds the migration lock for its
	// whole duration, initialises the history store and upgrades stored
	// checksums before looking at any changeset. Read-only operations
	// (status, history and validate) take no lock.
	//
	// Key features:
	//   - update, update-count and update-to-tag with a fast up-to-date check
	//   - rollback-count and rollback-to-tag in reverse execution order
	//   - status with every reason a changeset will not run
	//   - tag, changelog-sync and clear-checksums history maintenance
	//   - validation of identifiers, checksums and change attributes
	//
	// Example usage:
	//
	//	exec := executor.New(executor.Config{
	//		DB:      db,
	//		History: history.New(db, history.Config{}),
	//		Lock:    lock.New(db, lock.Config{}),
	//	})
	//
	//	result, err := exec.Update(ctx, cl, executor.Options{
	//		Contexts: selector.NewContexts("prod"),
	//	})
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	//
	//	fmt.Printf("%d changesets applied\n", result.Count())
	Executor struct {
		db              database.Database
		history         history.Service
		lock            lock.Service
		fastCheck       *fastcheck.Service
		runners         map[string]database.Database
		allowDuplicates bool
		logger          *slog.Logger
	}

	// Config contains the collaborators of an Executor.
	Config struct {
		// DB is the target database
		DB database.Database

		// History records executed changesets. Defaults to the table backed
		// service for DB.
		History history.Service

		// Lock guards writes to history. Defaults to the table backed lock
		// for DB.
		Lock lock.Service

		// FastCheck lets update return early, without the lock, when nothing
		// is pending. Nil disables the check.
		FastCheck *fastcheck.Service

		// Runners maps runWith names to alternative databases
		Runners map[string]database.Database

		// AllowDuplicates permits repeated changeset identifiers
		AllowDuplicates bool

		// Logger defaults to slog.Default()
		Logger *slog.Logger
	}

	// Options selects the changesets an operation applies to.
	Options struct {
		// Contexts are the runtime contexts matched against changeset
		// context expressions
		Contexts selector.Contexts

		// Labels is the runtime label expression
		Labels *selector.Expression
	}
)

// New creates an Executor, filling in default collaborators.
//
// Example usage:
//
//	exec := executor.New(executor.Config{DB: db, FastCheck: fastcheck.New()})
func New(cfg Config) *Executor {
	if cfg.History == nil {
		cfg.History = history.NewStandard(cfg.DB)
	}

	if cfg.Lock == nil {
		cfg.Lock = lock.New(cfg.DB, lock.Config{})
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Executor{
		db:              cfg.DB,
		history:         cfg.History,
		lock:            cfg.Lock,
		fastCheck:       cfg.FastCheck,
		runners:         cfg.Runners,
		allowDuplicates: cfg.AllowDuplicates,
		logger:          cfg.Logger,
	}
}

// HistoryService returns the history service used by the executor.
func (e *Executor) HistoryService() history.Service { return e.history }

// Locks lists the current holders of the migration lock.
func (e *Executor) Locks(ctx context.Context) ([]lock.Info, error) {
	return e.lock.ListLocks(ctx)
}

// ReleaseLocks removes the migration lock regardless of its owner.
func (e *Executor) ReleaseLocks(ctx context.Context) error {
	e.logger.WarnContext(ctx, "Forcing release of the migration lock")
	return e.lock.ForceRelease(ctx)
}

// locked runs fn while holding the migration lock with an initialised and
// checksum-upgraded history store. The lock is released even when fn fails.
func (e *Executor) locked(ctx context.Context, cl *changelog.DatabaseChangeLog, fn func() error) (err error) {
	if err := e.lock.WaitForLock(ctx); err != nil {
		return errors.Wrap(err, "failed to acquire the migration lock")
	}

	defer func() {
		if rerr := e.lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			e.logger.ErrorContext(ctx, "Failed to release the migration lock", "error", rerr)
			if err == nil {
				err = errors.Wrap(rerr, "failed to release the migration lock")
			}
		}
	}()

	if err := e.prepare(ctx, cl); err != nil {
		return err
	}

	return fn()
}

// prepare initialises the history store and upgrades stored checksums.
func (e *Executor) prepare(ctx context.Context, cl *changelog.DatabaseChangeLog) error {
	e.history.Reset()
	e.history.ResetDeploymentID()

	if err := e.history.Init(ctx); err != nil {
		return errors.Wrap(err, "failed to initialise history")
	}

	if cl == nil {
		return nil
	}

	if err := e.history.UpgradeChecksums(ctx, cl); err != nil {
		return errors.Wrap(err, "failed to upgrade checksums")
	}

	return nil
}

func (e *Executor) execOptions(opts Options) changelog.ExecOptions {
	return changelog.ExecOptions{
		Contexts: opts.Contexts,
		Labels:   opts.Labels,
		History:  e.history,
		Runners:  e.runners,
	}
}

func (e *Executor) iterator(cl *changelog.DatabaseChangeLog, changeSets []*changelog.ChangeSet, filters []filter.Filter) iterator.Config {
	return iterator.Config{
		ChangeLog:       cl,
		ChangeSets:      changeSets,
		Filters:         filters,
		Database:        e.db.ShortName(),
		DeploymentID:    e.history.DeploymentID(),
		AllowDuplicates: e.allowDuplicates,
		Logger:          e.logger,
	}
}
