package history

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
)

// Author and path of the placeholder row written when a tag is applied to an
// empty history.
const (
	InternalAuthor = "changekeeper"
	InternalPath   = "changekeeper-internal"
)

// Columns is the history layout shared by the table and the offline file.
var Columns = []string{
	"ID",
	"AUTHOR",
	"FILENAME",
	"DATEEXECUTED",
	"ORDEREXECUTED",
	"EXECTYPE",
	"MD5SUM",
	"DESCRIPTION",
	"COMMENTS",
	"TAG",
	"LIQUIBASE",
	"CONTEXTS",
	"LABELS",
	"DEPLOYMENT_ID",
}

// ErrDatabaseHistory is wrapped by errors caused by inconsistent history,
// such as a changeset recorded twice or an unknown exec type.
var ErrDatabaseHistory = errors.New("invalid database history")

type (
	// Service persists which changesets ran against a database.
	//
	// The listing returned by RanChangeSets is cached by every
	// implementation. Mutating operations invalidate the cache, and Reset
	// discards it so changes made by other processes become visible.
	//
	// Example usage:
	//
	//	svc := history.New(db, history.Config{})
	//	if err := svc.Init(ctx); err != nil {
	//		return err
	//	}
	//
	//	status, err := svc.RunStatus(ctx, cs)
	Service interface {
		// Init creates or upgrades the underlying store.
		Init(ctx context.Context) error

		// RanChangeSets lists history ordered by execution.
		RanChangeSets(ctx context.Context) ([]*changelog.RanChangeSet, error)

		// RanChangeSet returns the row recording cs, or nil.
		RanChangeSet(ctx context.Context, cs *changelog.ChangeSet) (*changelog.RanChangeSet, error)

		// RunStatus compares cs against its row.
		RunStatus(ctx context.Context, cs *changelog.ChangeSet) (changelog.RunStatus, error)

		// SetExecType records the outcome of running cs. RERAN updates the
		// existing row; FAILED and SKIPPED are not recorded.
		SetExecType(ctx context.Context, cs *changelog.ChangeSet, execType changelog.ExecType) error

		// RemoveFromHistory deletes the row recording cs.
		RemoveFromHistory(ctx context.Context, cs *changelog.ChangeSet) error

		// Tag labels the most recent row.
		Tag(ctx context.Context, tag string) error
		TagExists(ctx context.Context, tag string) (bool, error)

		// ClearAllCheckSums nulls every stored checksum so they are
		// recomputed on the next update.
		ClearAllCheckSums(ctx context.Context) error

		// ReplaceChecksum stores the current checksum of cs.
		ReplaceChecksum(ctx context.Context, cs *changelog.ChangeSet) error

		// UpgradeChecksums stores current checksums for rows with no checksum
		// and for rows whose older checksum is still valid.
		UpgradeChecksums(ctx context.Context, cl *changelog.DatabaseChangeLog) error

		// NextSequenceValue returns the next ORDEREXECUTED value.
		NextSequenceValue(ctx context.Context) (int, error)

		// IsDatabaseChecksumsCompatible is false when any stored checksum was
		// computed by an older algorithm.
		IsDatabaseChecksumsCompatible() bool

		// HasRun answers changeSetExecuted preconditions.
		HasRun(ctx context.Context, path, id, author string) (bool, error)

		DeploymentID() string
		ResetDeploymentID()

		// Reset drops every cached value.
		Reset()

		// Destroy removes the underlying store.
		Destroy(ctx context.Context) error
	}

	// Config selects and configures a Service.
	Config struct {
		// OfflineFile switches to the CSV backed service when set.
		OfflineFile string
	}

	// deployment lazily assigns the id shared by every row written in one
	// run.
	deployment struct {
		id string
	}
)

// New returns the offline service when cfg names a file, otherwise the
// service backed by the database's history table.
func New(db database.Database, cfg Config) Service {
	if cfg.OfflineFile != "" {
		return NewOffline(db, cfg.OfflineFile)
	}

	return NewStandard(db)
}

func (d *deployment) ID() string {
	if d.id == "" {
		d.id = newDeploymentID(time.Now())
	}

	return d.id
}

func (d *deployment) reset() { d.id = "" }

// newDeploymentID keeps the last 10 digits of the epoch milliseconds.
func newDeploymentID(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) <= 10 {
		return ms
	}

	return ms[len(ms)-10:]
}

// find returns the row recording cs. A changeset recorded twice is an error.
func find(ran []*changelog.RanChangeSet, cs *changelog.ChangeSet) (*changelog.RanChangeSet, error) {
	var found *changelog.RanChangeSet
	for _, r := range ran {
		if !r.IsSameAs(cs) {
			continue
		}

		if found != nil {
			return nil, errors.Wrapf(ErrDatabaseHistory, "changeset %s is recorded more than once", cs)
		}
		found = r
	}

	return found, nil
}

func hasRun(ran []*changelog.RanChangeSet, path, id, author string) bool {
	for _, r := range ran {
		if r.Matches(path, id, author) && r.ExecType.Ran() {
			return true
		}
	}

	return false
}

// ChecksumsCompatible reports whether every stored checksum in ran was
// computed by the latest algorithm. Cleared checksums are ignored.
func ChecksumsCompatible(ran []*changelog.RanChangeSet) bool {
	for _, r := range ran {
		if !r.CheckSum.IsZero() && r.CheckSum.Version() < checksum.Latest {
			return false
		}
	}

	return true
}

func hasTag(ran []*changelog.RanChangeSet, tag string) bool {
	for _, r := range ran {
		if strings.EqualFold(r.Tag, tag) {
			return true
		}
	}

	return false
}

// upgradeChecksums implements UpgradeChecksums on top of the other Service
// operations.
func upgradeChecksums(ctx context.Context, s Service, cl *changelog.DatabaseChangeLog, dbName string) error {
	ran, err := s.RanChangeSets(ctx)
	if err != nil {
		return err
	}

	for _, r := range ran {
		cs := cl.ChangeSet(r.ChangeLog, r.ID, r.Author)
		if cs == nil {
			continue
		}

		stale := r.CheckSum.IsZero() ||
			(r.CheckSum.Version() < checksum.Latest && cs.IsCheckSumValid(r.CheckSum, dbName))
		if !stale {
			continue
		}

		if err := s.ReplaceChecksum(ctx, cs); err != nil {
			return err
		}
	}

	return nil
}

// internalChangeSet is recorded before tagging an empty history.
func internalChangeSet(now time.Time) *changelog.ChangeSet {
	cs := changelog.NewChangeSet(strconv.FormatInt(now.UnixMilli(), 10), InternalAuthor, nil)
	cs.FilePath = InternalPath
	return cs
}

// newRow builds the row recorded for cs.
func newRow(cs *changelog.ChangeSet, execType changelog.ExecType, dbName, deploymentID string, order int) *changelog.RanChangeSet {
	r := changelog.NewRanChangeSet(cs, execType, dbName)
	r.OrderExecuted = order
	r.DeploymentID = deploymentID
	r.Version = consts.Version
	return r
}

// parseRow converts stored column values, keyed by column name.
func parseRow(get func(string) string, date time.Time, order int) (*changelog.RanChangeSet, error) {
	sum, err := checksum.Parse(get("MD5SUM"))
	if err != nil {
		return nil, errors.Wrap(ErrDatabaseHistory, err.Error())
	}

	execType := changelog.ExecExecuted
	if raw := get("EXECTYPE"); raw != "" {
		if execType, err = changelog.ParseExecType(raw); err != nil {
			return nil, errors.Wrap(ErrDatabaseHistory, err.Error())
		}
	}

	return &changelog.RanChangeSet{
		ChangeLog:     get("FILENAME"),
		ID:            get("ID"),
		Author:        get("AUTHOR"),
		CheckSum:      sum,
		DateExecuted:  date,
		OrderExecuted: order,
		ExecType:      execType,
		Description:   get("DESCRIPTION"),
		Comments:      get("COMMENTS"),
		Tag:           get("TAG"),
		Contexts:      get("CONTEXTS"),
		Labels:        get("LABELS"),
		DeploymentID:  get("DEPLOYMENT_ID"),
		Version:       get("LIQUIBASE"),
	}, nil
}
