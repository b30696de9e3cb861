package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
)

type (
	// Standard keeps history in a table of the target database, named by
	// database.HistoryTableName.
	//
	// Init creates the table on first use. An existing table written by an
	// older release is upgraded in place: missing columns are added and
	// undersized MD5SUM and LIQUIBASE columns are widened.
	//
	// Example usage:
	//
	//	svc := history.NewStandard(db)
	//	if err := svc.Init(ctx); err != nil {
	//		return err
	//	}
	//
	//	if err := svc.SetExecType(ctx, cs, changelog.ExecExecuted); err != nil {
	//		return err
	//	}
	Standard struct {
		db database.Database

		ready      bool
		hasTable   bool
		ran        []*changelog.RanChangeSet
		loaded     bool
		compatible bool
		lastSeq    int
		seqLoaded  bool
		deployment deployment
	}

	// columnFix describes a column older tables may lack, and the statements
	// that backfill it after it is added.
	columnFix struct {
		column   change.Column
		backfill string
	}
)

var _ Service = (*Standard)(nil)

// NewStandard returns a Service backed by db's history table.
func NewStandard(db database.Database) *Standard {
	return &Standard{db: db, compatible: true}
}

// historyColumns is the table definition. The first six columns are required.
func historyColumns() []change.Column {
	return []change.Column{
		{Name: "ID", Type: "VARCHAR(255)", NotNull: true},
		{Name: "AUTHOR", Type: "VARCHAR(255)", NotNull: true},
		{Name: "FILENAME", Type: "VARCHAR(255)", NotNull: true},
		{Name: "DATEEXECUTED", Type: "DATETIME", NotNull: true},
		{Name: "ORDEREXECUTED", Type: "INT", NotNull: true},
		{Name: "EXECTYPE", Type: "VARCHAR(10)", NotNull: true},
		{Name: "MD5SUM", Type: "VARCHAR(35)"},
		{Name: "DESCRIPTION", Type: "VARCHAR(255)"},
		{Name: "COMMENTS", Type: "VARCHAR(255)"},
		{Name: "TAG", Type: "VARCHAR(255)"},
		{Name: "LIQUIBASE", Type: "VARCHAR(20)"},
		{Name: "CONTEXTS", Type: "VARCHAR(255)"},
		{Name: "LABELS", Type: "VARCHAR(255)"},
		{Name: "DEPLOYMENT_ID", Type: "VARCHAR(10)"},
	}
}

func (s *Standard) Init(ctx context.Context) error {
	if s.ready {
		return nil
	}

	exists, err := s.tableExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		err = s.upgrade(ctx)
	} else {
		err = s.create(ctx)
	}

	if err != nil {
		return err
	}

	s.hasTable = true
	s.ready = true
	s.loaded = false

	ran, err := s.RanChangeSets(ctx)
	if err != nil {
		return err
	}

	s.compatible = ChecksumsCompatible(ran)
	if !s.compatible {
		slog.WarnContext(ctx, "History contains checksums computed by an older algorithm", "table", s.db.HistoryTableName())
	}

	return nil
}

func (s *Standard) create(ctx context.Context) error {
	slog.InfoContext(ctx, "Creating history table", "table", s.db.HistoryTableName())

	stmts, err := (&change.CreateTable{
		SchemaName: s.db.DefaultSchemaName(),
		TableName:  s.db.HistoryTableName(),
		Columns:    historyColumns(),
	}).Statements(s.db)
	if err != nil {
		return err
	}

	return s.execAll(ctx, stmts)
}

func (s *Standard) upgrade(ctx context.Context) error {
	existing, err := s.db.Columns(ctx, s.db.DefaultSchemaName(), s.db.HistoryTableName())
	if err != nil {
		return errors.Wrap(err, "failed to read history table columns")
	}

	byName := make(map[string]database.Column, len(existing))
	for _, c := range existing {
		byName[strings.ToUpper(c.Name)] = c
	}

	q := s.db.Dialect().Quoter()
	fixes := []columnFix{
		{column: change.Column{Name: "DESCRIPTION", Type: "VARCHAR(255)"}},
		{column: change.Column{Name: "TAG", Type: "VARCHAR(255)"}},
		{column: change.Column{Name: "COMMENTS", Type: "VARCHAR(255)"}},
		{column: change.Column{Name: "LIQUIBASE", Type: "VARCHAR(20)"}},
		{
			column:   change.Column{Name: "ORDEREXECUTED", Type: "INT"},
			backfill: q.Identifier("ORDEREXECUTED") + " = -1",
		},
		{
			column:   change.Column{Name: "EXECTYPE", Type: "VARCHAR(10)"},
			backfill: q.Identifier("EXECTYPE") + " = '" + string(changelog.ExecExecuted) + "'",
		},
		{column: change.Column{Name: "CONTEXTS", Type: "VARCHAR(255)"}},
		{column: change.Column{Name: "LABELS", Type: "VARCHAR(255)"}},
		{column: change.Column{Name: "DEPLOYMENT_ID", Type: "VARCHAR(10)"}},
	}

	for _, fix := range fixes {
		if _, ok := byName[fix.column.Name]; ok {
			continue
		}

		slog.InfoContext(ctx, "Adding missing history column", "table", s.db.HistoryTableName(), "column", fix.column.Name)
		stmts, err := (&change.AddColumn{
			SchemaName: s.db.DefaultSchemaName(),
			TableName:  s.db.HistoryTableName(),
			Columns:    []change.Column{fix.column},
		}).Statements(s.db)
		if err != nil {
			return err
		}

		if fix.backfill != "" {
			stmts = append(stmts, s.db.Dialect().UpdateQuery(s.table(), fix.backfill, ""))
		}

		if err := s.execAll(ctx, stmts); err != nil {
			return err
		}
	}

	resize := map[string]string{"MD5SUM": "VARCHAR(35)", "LIQUIBASE": "VARCHAR(20)"}
	for _, name := range []string{"MD5SUM", "LIQUIBASE"} {
		col, ok := byName[name]
		if !ok || col.Size == 0 || col.Size >= database.ParseSize(resize[name]) {
			continue
		}

		stmt := s.db.Dialect().ModifyColumnType(s.db.DefaultSchemaName(), s.db.HistoryTableName(), name, resize[name])
		if stmt == "" {
			continue
		}

		slog.InfoContext(ctx, "Resizing history column", "column", name, "type", resize[name])
		if err := s.exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *Standard) RanChangeSets(ctx context.Context) ([]*changelog.RanChangeSet, error) {
	if s.loaded {
		return s.ran, nil
	}

	exists, err := s.tableExists(ctx)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	q := s.db.Dialect().Quoter()
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s ASC, %s ASC",
		s.table(), q.Identifier("DATEEXECUTED"), q.Identifier("ORDEREXECUTED")))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}

	ran := make([]*changelog.RanChangeSet, 0, len(rows))
	for _, row := range rows {
		r, err := parseRow(row.String, row.Time("DATEEXECUTED"), row.Int("ORDEREXECUTED"))
		if err != nil {
			return nil, err
		}
		ran = append(ran, r)
	}

	s.ran = ran
	s.loaded = true
	return ran, nil
}

func (s *Standard) RanChangeSet(ctx context.Context, cs *changelog.ChangeSet) (*changelog.RanChangeSet, error) {
	ran, err := s.RanChangeSets(ctx)
	if err != nil {
		return nil, err
	}

	return find(ran, cs)
}

func (s *Standard) RunStatus(ctx context.Context, cs *changelog.ChangeSet) (changelog.RunStatus, error) {
	r, err := s.RanChangeSet(ctx, cs)
	if err != nil {
		return changelog.NotRan, err
	}

	return cs.RunStatus(r, s.db.ShortName()), nil
}

func (s *Standard) SetExecType(ctx context.Context, cs *changelog.ChangeSet, execType changelog.ExecType) error {
	if execType == changelog.ExecFailed || execType == changelog.ExecSkipped {
		return nil
	}

	order, err := s.NextSequenceValue(ctx)
	if err != nil {
		return err
	}

	row := newRow(cs, execType, s.db.ShortName(), s.DeploymentID(), order)
	defer s.invalidate()

	if execType == changelog.ExecReran {
		pairs := []any{
			"DATEEXECUTED", row.DateExecuted,
			"ORDEREXECUTED", row.OrderExecuted,
			"MD5SUM", row.CheckSum.String(),
			"EXECTYPE", string(row.ExecType),
			"DEPLOYMENT_ID", row.DeploymentID,
			"COMMENTS", nullable(row.Comments),
			"CONTEXTS", nullable(row.Contexts),
			"LABELS", nullable(row.Labels),
		}
		if row.Tag != "" {
			pairs = append(pairs, "TAG", row.Tag)
		}

		set, args := s.assignments(pairs...)

		where, whereArgs, err := s.identity(ctx, cs, len(args))
		if err != nil {
			return err
		}

		return s.exec(ctx, s.db.Dialect().UpdateQuery(s.table(), set, where), append(args, whereArgs...)...)
	}

	q := s.db.Dialect().Quoter()
	cols := make([]string, len(Columns))
	marks := make([]string, len(Columns))
	for i, c := range Columns {
		cols[i] = q.Identifier(c)
		marks[i] = s.db.Dialect().Placeholder(i + 1)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table(), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return s.exec(ctx, insert,
		row.ID,
		row.Author,
		row.ChangeLog,
		row.DateExecuted,
		row.OrderExecuted,
		string(row.ExecType),
		nullable(row.CheckSum.String()),
		nullable(row.Description),
		nullable(row.Comments),
		nullable(row.Tag),
		row.Version,
		nullable(row.Contexts),
		nullable(row.Labels),
		row.DeploymentID,
	)
}

func (s *Standard) RemoveFromHistory(ctx context.Context, cs *changelog.ChangeSet) error {
	where, args, err := s.identity(ctx, cs, 0)
	if err != nil {
		return err
	}

	defer s.invalidate()
	return s.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", s.table(), where), args...)
}

func (s *Standard) Tag(ctx context.Context, tag string) error {
	ran, err := s.RanChangeSets(ctx)
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		if err := s.SetExecType(ctx, internalChangeSet(time.Now()), changelog.ExecExecuted); err != nil {
			return err
		}

		if ran, err = s.RanChangeSets(ctx); err != nil {
			return err
		}
	}

	last := ran[len(ran)-1]
	defer s.invalidate()

	set, args := s.assignments("TAG", tag)
	where, whereArgs := s.identityOf(last.ChangeLog, last.ID, last.Author, len(args))
	return s.exec(ctx, s.db.Dialect().UpdateQuery(s.table(), set, where), append(args, whereArgs...)...)
}

func (s *Standard) TagExists(ctx context.Context, tag string) (bool, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return false, err
	}

	q := s.db.Dialect().Quoter()
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS CNT FROM %s WHERE %s = %s", s.table(), q.Identifier("TAG"), s.db.Dialect().Placeholder(1)),
		tag,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to look up tag")
	}

	return len(rows) > 0 && rows[0].Int("CNT") > 0, nil
}

func (s *Standard) ClearAllCheckSums(ctx context.Context) error {
	defer s.invalidate()

	set := s.db.Dialect().Quoter().Identifier("MD5SUM") + " = NULL"
	return s.exec(ctx, s.db.Dialect().UpdateQuery(s.table(), set, ""))
}

func (s *Standard) ReplaceChecksum(ctx context.Context, cs *changelog.ChangeSet) error {
	cs.ClearCheckSum()
	set, args := s.assignments("MD5SUM", cs.CheckSum(checksum.Latest, s.db.ShortName()).String())
	where, whereArgs, err := s.identity(ctx, cs, len(args))
	if err != nil {
		return err
	}

	defer s.invalidate()
	return s.exec(ctx, s.db.Dialect().UpdateQuery(s.table(), set, where), append(args, whereArgs...)...)
}

func (s *Standard) UpgradeChecksums(ctx context.Context, cl *changelog.DatabaseChangeLog) error {
	return upgradeChecksums(ctx, s, cl, s.db.ShortName())
}

func (s *Standard) NextSequenceValue(ctx context.Context) (int, error) {
	if !s.seqLoaded {
		exists, err := s.tableExists(ctx)
		if err != nil {
			return 0, err
		}

		if exists {
			rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT MAX(%s) AS MX FROM %s",
				s.db.Dialect().Quoter().Identifier("ORDEREXECUTED"), s.table()))
			if err != nil {
				return 0, errors.Wrap(err, "failed to read last execution order")
			}

			if len(rows) > 0 {
				s.lastSeq = rows[0].Int("MX")
			}
		}

		s.seqLoaded = true
	}

	s.lastSeq++
	return s.lastSeq, nil
}

func (s *Standard) IsDatabaseChecksumsCompatible() bool { return s.compatible }

func (s *Standard) HasRun(ctx context.Context, path, id, author string) (bool, error) {
	ran, err := s.RanChangeSets(ctx)
	if err != nil {
		return false, err
	}

	return hasRun(ran, path, id, author), nil
}

func (s *Standard) DeploymentID() string { return s.deployment.ID() }
func (s *Standard) ResetDeploymentID()   { s.deployment.reset() }

func (s *Standard) Reset() {
	s.ready = false
	s.hasTable = false
	s.seqLoaded = false
	s.lastSeq = 0
	s.invalidate()
}

func (s *Standard) Destroy(ctx context.Context) error {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return err
	}

	slog.InfoContext(ctx, "Dropping history table", "table", s.db.HistoryTableName())
	stmts, err := (&change.DropTable{SchemaName: s.db.DefaultSchemaName(), TableName: s.db.HistoryTableName()}).Statements(s.db)
	if err != nil {
		return err
	}

	if err := s.execAll(ctx, stmts); err != nil {
		return err
	}

	s.Reset()
	return nil
}

func (s *Standard) invalidate() {
	s.ran = nil
	s.loaded = false
}

func (s *Standard) tableExists(ctx context.Context) (bool, error) {
	if s.hasTable {
		return true, nil
	}

	exists, err := s.db.TableExists(ctx, s.db.DefaultSchemaName(), s.db.HistoryTableName())
	if err != nil {
		return false, errors.Wrap(err, "failed to check for history table")
	}

	s.hasTable = exists
	return exists, nil
}

func (s *Standard) table() string {
	schema := ""
	if s.db.SupportsSchemas() {
		schema = s.db.DefaultSchemaName()
	}

	return s.db.Dialect().Quoter().Qualified(schema, s.db.HistoryTableName())
}

// assignments renders "COL = ?" pairs from alternating names and values.
func (s *Standard) assignments(pairs ...any) (string, []any) {
	q := s.db.Dialect().Quoter()

	parts := make([]string, 0, len(pairs)/2)
	args := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s = %s", q.Identifier(pairs[i].(string)), s.db.Dialect().Placeholder(len(args)+1)))
		args = append(args, pairs[i+1])
	}

	return strings.Join(parts, ", "), args
}

// identity selects the row recording cs, using the stored spelling of its
// identity when history has one.
func (s *Standard) identity(ctx context.Context, cs *changelog.ChangeSet, offset int) (string, []any, error) {
	r, err := s.RanChangeSet(ctx, cs)
	if err != nil {
		return "", nil, err
	}

	if r != nil {
		where, args := s.identityOf(r.ChangeLog, r.ID, r.Author, offset)
		return where, args, nil
	}

	where, args := s.identityOf(cs.FilePath, cs.ID, cs.Author, offset)
	return where, args, nil
}

// identityOf renders the predicate selecting one row. offset is the number of
// arguments bound before it.
func (s *Standard) identityOf(path, id, author string, offset int) (string, []any) {
	q := s.db.Dialect().Quoter()
	d := s.db.Dialect()

	where := fmt.Sprintf("%s = %s AND %s = %s AND %s = %s",
		q.Identifier("ID"), d.Placeholder(offset+1),
		q.Identifier("AUTHOR"), d.Placeholder(offset+2),
		q.Identifier("FILENAME"), d.Placeholder(offset+3),
	)

	return where, []any{id, author, path}
}

func (s *Standard) exec(ctx context.Context, query string, args ...any) error {
	return errors.Wrap(s.db.Exec(ctx, query, args...), "failed to update history")
}

func (s *Standard) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := s.exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
