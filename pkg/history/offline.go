package history

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
)

// offlineDateFormat is how DATEEXECUTED is written to the offline file.
const offlineDateFormat = "2006-01-02T15:04:05.000"

// Offline keeps history in a CSV file instead of a table. It is used when
// SQL is generated for a database that cannot be reached.
//
// The file starts with a header naming Columns. Every mutation reads the
// whole file, writes the new content to a ".new" sibling, removes the
// original and renames the sibling into place, so a crash never leaves a
// partially written history. A flock on a ".lock" sibling serialises
// processes sharing the file.
type Offline struct {
	db   database.Database
	path string

	ran        []*changelog.RanChangeSet
	loaded     bool
	compatible bool
	lastSeq    int
	seqLoaded  bool
	deployment deployment
}

var _ Service = (*Offline)(nil)

// NewOffline returns a Service storing history for db in the CSV file at
// path.
func NewOffline(db database.Database, path string) *Offline {
	return &Offline{db: db, path: path, compatible: true}
}

// Path returns the history file location.
func (o *Offline) Path() string { return o.path }

func (o *Offline) Init(ctx context.Context) error {
	_, err := os.Stat(o.path)
	switch {
	case os.IsNotExist(err):
		if err := o.withLock(func() error { return o.write([][]string{Columns}) }); err != nil {
			return err
		}
	case err != nil:
		return errors.Wrapf(err, "failed to stat %s", o.path)
	}

	ran, err := o.RanChangeSets(ctx)
	if err != nil {
		return err
	}

	o.compatible = ChecksumsCompatible(ran)
	return nil
}

func (o *Offline) RanChangeSets(context.Context) ([]*changelog.RanChangeSet, error) {
	if o.loaded {
		return o.ran, nil
	}

	records, err := o.read()
	if err != nil {
		return nil, err
	}

	ran := make([]*changelog.RanChangeSet, 0, len(records))
	for _, rec := range records[1:] {
		get := recordGetter(records[0], rec)

		date, _ := time.ParseInLocation(offlineDateFormat, get("DATEEXECUTED"), time.UTC)
		order, _ := strconv.Atoi(get("ORDEREXECUTED"))

		r, err := parseRow(get, date, order)
		if err != nil {
			return nil, err
		}
		ran = append(ran, r)
	}

	o.ran = ran
	o.loaded = true
	return ran, nil
}

func (o *Offline) RanChangeSet(ctx context.Context, cs *changelog.ChangeSet) (*changelog.RanChangeSet, error) {
	ran, err := o.RanChangeSets(ctx)
	if err != nil {
		return nil, err
	}

	return find(ran, cs)
}

func (o *Offline) RunStatus(ctx context.Context, cs *changelog.ChangeSet) (changelog.RunStatus, error) {
	r, err := o.RanChangeSet(ctx, cs)
	if err != nil {
		return changelog.NotRan, err
	}

	return cs.RunStatus(r, o.db.ShortName()), nil
}

func (o *Offline) SetExecType(ctx context.Context, cs *changelog.ChangeSet, execType changelog.ExecType) error {
	if execType == changelog.ExecFailed || execType == changelog.ExecSkipped {
		return nil
	}

	order, err := o.NextSequenceValue(ctx)
	if err != nil {
		return err
	}

	row := newRow(cs, execType, o.db.ShortName(), o.DeploymentID(), order)
	if execType != changelog.ExecReran {
		return o.rewrite(func(records [][]string) ([][]string, error) {
			return append(records, toRecord(records[0], row)), nil
		})
	}

	return o.rewrite(func(records [][]string) ([][]string, error) {
		for _, rec := range records[1:] {
			if !sameRecord(records[0], rec, cs.FilePath, cs.ID, cs.Author) {
				continue
			}

			set := recordSetter(records[0], rec)
			set("DATEEXECUTED", row.DateExecuted.UTC().Format(offlineDateFormat))
			set("MD5SUM", row.CheckSum.String())
			set("EXECTYPE", string(row.ExecType))
			set("ORDEREXECUTED", strconv.Itoa(row.OrderExecuted))
			set("DEPLOYMENT_ID", row.DeploymentID)
			set("COMMENTS", row.Comments)
			set("CONTEXTS", row.Contexts)
			set("LABELS", row.Labels)
			if row.Tag != "" {
				set("TAG", row.Tag)
			}
		}

		return records, nil
	})
}

func (o *Offline) RemoveFromHistory(_ context.Context, cs *changelog.ChangeSet) error {
	return o.rewrite(func(records [][]string) ([][]string, error) {
		kept := [][]string{records[0]}
		for _, rec := range records[1:] {
			if !sameRecord(records[0], rec, cs.FilePath, cs.ID, cs.Author) {
				kept = append(kept, rec)
			}
		}

		return kept, nil
	})
}

func (o *Offline) Tag(ctx context.Context, tag string) error {
	ran, err := o.RanChangeSets(ctx)
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		if err := o.SetExecType(ctx, internalChangeSet(time.Now()), changelog.ExecExecuted); err != nil {
			return err
		}
	}

	return o.rewrite(func(records [][]string) ([][]string, error) {
		recordSetter(records[0], records[len(records)-1])("TAG", tag)
		return records, nil
	})
}

func (o *Offline) TagExists(ctx context.Context, tag string) (bool, error) {
	ran, err := o.RanChangeSets(ctx)
	if err != nil {
		return false, err
	}

	return hasTag(ran, tag), nil
}

func (o *Offline) ClearAllCheckSums(context.Context) error {
	return o.rewrite(func(records [][]string) ([][]string, error) {
		for _, rec := range records[1:] {
			recordSetter(records[0], rec)("MD5SUM", "")
		}

		return records, nil
	})
}

func (o *Offline) ReplaceChecksum(_ context.Context, cs *changelog.ChangeSet) error {
	cs.ClearCheckSum()
	sum := cs.CheckSum(checksum.Latest, o.db.ShortName()).String()

	return o.rewrite(func(records [][]string) ([][]string, error) {
		for _, rec := range records[1:] {
			if sameRecord(records[0], rec, cs.FilePath, cs.ID, cs.Author) {
				recordSetter(records[0], rec)("MD5SUM", sum)
			}
		}

		return records, nil
	})
}

func (o *Offline) UpgradeChecksums(ctx context.Context, cl *changelog.DatabaseChangeLog) error {
	return upgradeChecksums(ctx, o, cl, o.db.ShortName())
}

// NextSequenceValue starts from the highest recorded ORDEREXECUTED on first
// use.
func (o *Offline) NextSequenceValue(ctx context.Context) (int, error) {
	if !o.seqLoaded {
		ran, err := o.RanChangeSets(ctx)
		if err != nil {
			return 0, err
		}

		o.lastSeq = 0
		for _, r := range ran {
			o.lastSeq = max(o.lastSeq, r.OrderExecuted)
		}
		o.seqLoaded = true
	}

	o.lastSeq++
	return o.lastSeq, nil
}

func (o *Offline) IsDatabaseChecksumsCompatible() bool { return o.compatible }

func (o *Offline) HasRun(ctx context.Context, path, id, author string) (bool, error) {
	ran, err := o.RanChangeSets(ctx)
	if err != nil {
		return false, err
	}

	return hasRun(ran, path, id, author), nil
}

func (o *Offline) DeploymentID() string { return o.deployment.ID() }
func (o *Offline) ResetDeploymentID()   { o.deployment.reset() }

func (o *Offline) Reset() {
	o.seqLoaded = false
	o.lastSeq = 0
	o.invalidate()
}

func (o *Offline) Destroy(context.Context) error {
	err := o.withLock(func() error {
		if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove %s", o.path)
		}

		return nil
	})

	o.Reset()
	return err
}

func (o *Offline) invalidate() {
	o.ran = nil
	o.loaded = false
}

// read returns every record, header first. A missing file reads as a bare
// header.
func (o *Offline) read() ([][]string, error) {
	f, err := os.Open(o.path)
	if os.IsNotExist(err) {
		return [][]string{slices.Clone(Columns)}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", o.path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", o.path)
	}

	if len(records) == 0 || columnIndex(records[0], "ID") < 0 {
		return nil, errors.Wrapf(ErrDatabaseHistory, "%s has no header row", o.path)
	}

	for i, rec := range records[1:] {
		if len(rec) < len(records[0]) {
			records[i+1] = append(rec, make([]string, len(records[0])-len(rec))...)
		}
	}

	return records, nil
}

// rewrite applies fn to the current records and replaces the file with the
// result.
func (o *Offline) rewrite(fn func(records [][]string) ([][]string, error)) error {
	defer o.invalidate()

	return o.withLock(func() error {
		records, err := o.read()
		if err != nil {
			return err
		}

		if records, err = fn(records); err != nil {
			return err
		}

		return o.write(records)
	})
}

// write stores records through the ".new" sibling.
func (o *Offline) write(records [][]string) error {
	tmp := o.path + ".new"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, consts.ModeFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}

	if err := writeRecords(f, records); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp)
	}

	if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", o.path)
	}

	return errors.Wrapf(os.Rename(tmp, o.path), "failed to replace %s", o.path)
}

func (o *Offline) withLock(fn func() error) error {
	lock := flock.New(o.path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "failed to lock %s", o.path)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return errors.Wrap(err, "failed to write history records")
	}

	return nil
}

// toRecord lays r out in the column order of header. Columns the header
// does not name are dropped.
func toRecord(header []string, r *changelog.RanChangeSet) []string {
	rec := make([]string, len(header))
	set := recordSetter(header, rec)

	set("ID", r.ID)
	set("AUTHOR", r.Author)
	set("FILENAME", r.ChangeLog)
	set("DATEEXECUTED", r.DateExecuted.UTC().Format(offlineDateFormat))
	set("ORDEREXECUTED", strconv.Itoa(r.OrderExecuted))
	set("EXECTYPE", string(r.ExecType))
	set("MD5SUM", r.CheckSum.String())
	set("DESCRIPTION", r.Description)
	set("COMMENTS", r.Comments)
	set("TAG", r.Tag)
	set("LIQUIBASE", r.Version)
	set("CONTEXTS", r.Contexts)
	set("LABELS", r.Labels)
	set("DEPLOYMENT_ID", r.DeploymentID)
	return rec
}

func recordGetter(header, rec []string) func(string) string {
	return func(col string) string {
		if i := columnIndex(header, col); i >= 0 && i < len(rec) {
			return rec[i]
		}

		return ""
	}
}

func recordSetter(header, rec []string) func(string, string) {
	return func(col, value string) {
		if i := columnIndex(header, col); i >= 0 && i < len(rec) {
			rec[i] = value
		}
	}
}

func columnIndex(header []string, col string) int {
	return slices.IndexFunc(header, func(h string) bool { return strings.EqualFold(strings.TrimSpace(h), col) })
}

// sameRecord reports whether rec records the identity.
func sameRecord(header, rec []string, path, id, author string) bool {
	get := recordGetter(header, rec)
	r := &changelog.RanChangeSet{ChangeLog: get("FILENAME"), ID: get("ID"), Author: get("AUTHOR")}
	return r.Matches(path, id, author)
}
