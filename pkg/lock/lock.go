package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
)

// lockID is the key of the single row guarding migrations.
const lockID = 1

// ErrTimeout is wrapped by WaitForLock when the lock stays held past the
// configured wait.
var ErrTimeout = errors.New("timed out waiting for the migration lock")

type (
	// Service guards a database against concurrent migrations.
	Service interface {
		// Acquire makes a single attempt and reports whether the lock is held.
		Acquire(ctx context.Context) (bool, error)

		// WaitForLock retries Acquire until it succeeds, the wait elapses or ctx
		// is done.
		WaitForLock(ctx context.Context) error

		// Release gives up a lock held by this service.
		Release(ctx context.Context) error

		// ForceRelease clears the lock whoever holds it.
		ForceRelease(ctx context.Context) error

		// ListLocks returns the current holders.
		ListLocks(ctx context.Context) ([]Info, error)

		HasLock() bool
	}

	// Info describes a held lock.
	Info struct {
		ID       int
		Granted  time.Time
		LockedBy string
	}

	// Config controls lock acquisition.
	Config struct {
		// Wait bounds WaitForLock. Defaults to consts.DefaultLockWait.
		Wait time.Duration

		// Poll is the delay between attempts. Defaults to
		// consts.DefaultLockPoll.
		Poll time.Duration

		// Owner identifies this process in LOCKEDBY. Defaults to the host name
		// followed by a random uuid.
		Owner string
	}

	// Table is a Service backed by a single-row table named by
	// database.LockTableName. The row is created on first use.
	//
	// Example usage:
	//
	//	lk := lock.New(db, lock.Config{Wait: time.Minute})
	//	if err := lk.WaitForLock(ctx); err != nil {
	//		return err
	//	}
	//	defer func() { _ = lk.Release(ctx) }()
	Table struct {
		db    database.Database
		cfg   Config
		ready bool
		held  bool
	}

	// NoOp always grants the lock. It is used when no live database is
	// involved.
	NoOp struct {
		held bool
	}
)

var (
	_ Service = (*Table)(nil)
	_ Service = (*NoOp)(nil)
)

// New returns a table lock for db.
func New(db database.Database, cfg Config) *Table {
	if cfg.Wait <= 0 {
		cfg.Wait = consts.DefaultLockWait
	}

	if cfg.Poll <= 0 {
		cfg.Poll = consts.DefaultLockPoll
	}

	if cfg.Owner == "" {
		cfg.Owner = DefaultOwner()
	}

	return &Table{db: db, cfg: cfg}
}

// DefaultOwner returns the host name followed by a random uuid, so two
// processes on one host are told apart.
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return fmt.Sprintf("%s (%s)", host, uuid.NewString())
}

// Owner returns the LOCKEDBY value written by this service.
func (t *Table) Owner() string { return t.cfg.Owner }

func (t *Table) HasLock() bool { return t.held }

func (t *Table) Acquire(ctx context.Context) (bool, error) {
	if t.held {
		return true, nil
	}

	if err := t.init(ctx); err != nil {
		return false, err
	}

	q := t.db.Dialect().Quoter()
	d := t.db.Dialect()

	set := fmt.Sprintf("%s = %s, %s = %s, %s = %s",
		q.Identifier("LOCKED"), d.Placeholder(1),
		q.Identifier("LOCKGRANTED"), d.Placeholder(2),
		q.Identifier("LOCKEDBY"), d.Placeholder(3),
	)
	where := fmt.Sprintf("%s = %s AND %s = %s", q.Identifier("ID"), d.Placeholder(4), q.Identifier("LOCKED"), d.Placeholder(5))

	if err := t.db.Exec(ctx, d.UpdateQuery(t.table(), set, where), true, time.Now().UTC(), t.cfg.Owner, lockID, false); err != nil {
		return false, errors.Wrap(err, "failed to acquire migration lock")
	}

	locks, err := t.ListLocks(ctx)
	if err != nil {
		return false, err
	}

	t.held = len(locks) > 0 && locks[0].LockedBy == t.cfg.Owner
	if t.held {
		slog.InfoContext(ctx, "Acquired migration lock", "owner", t.cfg.Owner)
	}

	return t.held, nil
}

func (t *Table) WaitForLock(ctx context.Context) error {
	deadline := time.Now().Add(t.cfg.Wait)
	for {
		ok, err := t.Acquire(ctx)
		if err != nil || ok {
			return err
		}

		if time.Now().After(deadline) {
			locks, _ := t.ListLocks(ctx)
			if len(locks) > 0 {
				return errors.Wrapf(ErrTimeout, "lock held by %s since %s", locks[0].LockedBy, locks[0].Granted.Format(time.RFC3339))
			}

			return ErrTimeout
		}

		slog.InfoContext(ctx, "Waiting for migration lock", "retry", t.cfg.Poll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.Poll):
		}
	}
}

func (t *Table) Release(ctx context.Context) error {
	if !t.held {
		return nil
	}

	if err := t.clear(ctx, true); err != nil {
		return err
	}

	t.held = false
	slog.InfoContext(ctx, "Released migration lock", "owner", t.cfg.Owner)
	return nil
}

func (t *Table) ForceRelease(ctx context.Context) error {
	if err := t.init(ctx); err != nil {
		return err
	}

	t.held = false
	return t.clear(ctx, false)
}

func (t *Table) ListLocks(ctx context.Context) ([]Info, error) {
	exists, err := t.db.TableExists(ctx, t.db.DefaultSchemaName(), t.db.LockTableName())
	if err != nil || !exists {
		return nil, errors.Wrap(err, "failed to check for lock table")
	}

	q := t.db.Dialect().Quoter()
	rows, err := t.db.Query(ctx,
		fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = %s",
			q.Identifier("ID"), q.Identifier("LOCKGRANTED"), q.Identifier("LOCKEDBY"),
			t.table(), q.Identifier("LOCKED"), t.db.Dialect().Placeholder(1)),
		true,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migration locks")
	}

	locks := make([]Info, 0, len(rows))
	for _, r := range rows {
		locks = append(locks, Info{ID: r.Int("ID"), Granted: r.Time("LOCKGRANTED"), LockedBy: r.String("LOCKEDBY")})
	}

	return locks, nil
}

// init creates the lock table and its row when missing.
func (t *Table) init(ctx context.Context) error {
	if t.ready {
		return nil
	}

	exists, err := t.db.TableExists(ctx, t.db.DefaultSchemaName(), t.db.LockTableName())
	if err != nil {
		return errors.Wrap(err, "failed to check for lock table")
	}

	if !exists {
		stmts, err := (&change.CreateTable{
			SchemaName: t.db.DefaultSchemaName(),
			TableName:  t.db.LockTableName(),
			Columns: []change.Column{
				{Name: "ID", Type: "INT", PrimaryKey: true},
				{Name: "LOCKED", Type: "BOOLEAN", NotNull: true},
				{Name: "LOCKGRANTED", Type: "DATETIME"},
				{Name: "LOCKEDBY", Type: "VARCHAR(255)"},
			},
		}).Statements(t.db)
		if err != nil {
			return err
		}

		q := t.db.Dialect().Quoter()
		d := t.db.Dialect()
		insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			t.table(), q.Identifier("ID"), q.Identifier("LOCKED"), d.Placeholder(1), d.Placeholder(2))

		for _, stmt := range stmts {
			if err := t.db.Exec(ctx, stmt); err != nil {
				return errors.Wrap(err, "failed to create lock table")
			}
		}

		if err := t.db.Exec(ctx, insert, lockID, false); err != nil {
			return errors.Wrap(err, "failed to initialise lock table")
		}
	}

	t.ready = true
	return nil
}

func (t *Table) clear(ctx context.Context, ownOnly bool) error {
	q := t.db.Dialect().Quoter()
	d := t.db.Dialect()

	set := fmt.Sprintf("%s = %s, %s = NULL, %s = NULL",
		q.Identifier("LOCKED"), d.Placeholder(1), q.Identifier("LOCKGRANTED"), q.Identifier("LOCKEDBY"))
	where := fmt.Sprintf("%s = %s", q.Identifier("ID"), d.Placeholder(2))
	args := []any{false, lockID}

	if ownOnly {
		where += fmt.Sprintf(" AND %s = %s", q.Identifier("LOCKEDBY"), d.Placeholder(3))
		args = append(args, t.cfg.Owner)
	}

	return errors.Wrap(t.db.Exec(ctx, d.UpdateQuery(t.table(), set, where), args...), "failed to release migration lock")
}

func (t *Table) table() string {
	schema := ""
	if t.db.SupportsSchemas() {
		schema = t.db.DefaultSchemaName()
	}

	return t.db.Dialect().Quoter().Qualified(schema, t.db.LockTableName())
}

func (n *NoOp) Acquire(context.Context) (bool, error) {
	n.held = true
	return true, nil
}

func (n *NoOp) WaitForLock(ctx context.Context) error {
	_, err := n.Acquire(ctx)
	return err
}

func (n *NoOp) Release(context.Context) error {
	n.held = false
	return nil
}

func (n *NoOp) ForceRelease(ctx context.Context) error { return n.Release(ctx) }

func (n *NoOp) ListLocks(context.Context) ([]Info, error) { return nil, nil }

func (n *NoOp) HasLock() bool { return n.held }
