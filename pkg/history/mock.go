package history

import (
	"context"
	"slices"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
)

// Mock is an in-memory Service for tests. Rows holds the recorded history in
// execution order and may be seeded directly.
type Mock struct {
	Database string
	Rows     []*changelog.RanChangeSet

	// Err, when set, is returned by every operation that reads history.
	Err error

	Initialized bool
	Destroyed   bool

	lastSeq    int
	deployment deployment
}

var _ Service = (*Mock)(nil)

// NewMock returns an empty Mock computing checksums for the named database.
func NewMock(database string) *Mock {
	return &Mock{Database: database}
}

func (m *Mock) Init(context.Context) error {
	m.Initialized = true
	return m.Err
}

func (m *Mock) RanChangeSets(context.Context) ([]*changelog.RanChangeSet, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	return slices.Clone(m.Rows), nil
}

func (m *Mock) RanChangeSet(_ context.Context, cs *changelog.ChangeSet) (*changelog.RanChangeSet, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	return find(m.Rows, cs)
}

func (m *Mock) RunStatus(ctx context.Context, cs *changelog.ChangeSet) (changelog.RunStatus, error) {
	r, err := m.RanChangeSet(ctx, cs)
	if err != nil {
		return changelog.NotRan, err
	}

	return cs.RunStatus(r, m.Database), nil
}

func (m *Mock) SetExecType(ctx context.Context, cs *changelog.ChangeSet, execType changelog.ExecType) error {
	if execType == changelog.ExecFailed || execType == changelog.ExecSkipped {
		return nil
	}

	order, _ := m.NextSequenceValue(ctx)
	row := newRow(cs, execType, m.Database, m.DeploymentID(), order)

	if execType == changelog.ExecReran {
		for _, r := range m.Rows {
			if r.IsSameAs(cs) {
				r.DateExecuted = row.DateExecuted
				r.OrderExecuted = row.OrderExecuted
				r.CheckSum = row.CheckSum
				r.ExecType = row.ExecType
				r.DeploymentID = row.DeploymentID
				r.Comments = row.Comments
				r.Contexts = row.Contexts
				r.Labels = row.Labels
				if row.Tag != "" {
					r.Tag = row.Tag
				}
				return nil
			}
		}
	}

	m.Rows = append(m.Rows, row)
	return nil
}

func (m *Mock) RemoveFromHistory(_ context.Context, cs *changelog.ChangeSet) error {
	m.Rows = slices.DeleteFunc(m.Rows, func(r *changelog.RanChangeSet) bool { return r.IsSameAs(cs) })
	return nil
}

func (m *Mock) Tag(ctx context.Context, tag string) error {
	if len(m.Rows) == 0 {
		if err := m.SetExecType(ctx, internalChangeSet(time.Now()), changelog.ExecExecuted); err != nil {
			return err
		}
	}

	m.Rows[len(m.Rows)-1].Tag = tag
	return nil
}

func (m *Mock) TagExists(_ context.Context, tag string) (bool, error) {
	return hasTag(m.Rows, tag), m.Err
}

func (m *Mock) ClearAllCheckSums(context.Context) error {
	for _, r := range m.Rows {
		r.CheckSum = checksum.CheckSum{}
	}

	return nil
}

func (m *Mock) ReplaceChecksum(_ context.Context, cs *changelog.ChangeSet) error {
	cs.ClearCheckSum()
	for _, r := range m.Rows {
		if r.IsSameAs(cs) {
			r.CheckSum = cs.CheckSum(checksum.Latest, m.Database)
		}
	}

	return nil
}

func (m *Mock) UpgradeChecksums(ctx context.Context, cl *changelog.DatabaseChangeLog) error {
	return upgradeChecksums(ctx, m, cl, m.Database)
}

func (m *Mock) NextSequenceValue(context.Context) (int, error) {
	if m.lastSeq < len(m.Rows) {
		m.lastSeq = len(m.Rows)
	}

	m.lastSeq++
	return m.lastSeq, nil
}

func (m *Mock) IsDatabaseChecksumsCompatible() bool { return ChecksumsCompatible(m.Rows) }

func (m *Mock) HasRun(_ context.Context, path, id, author string) (bool, error) {
	return hasRun(m.Rows, path, id, author), m.Err
}

func (m *Mock) DeploymentID() string { return m.deployment.ID() }
func (m *Mock) ResetDeploymentID()   { m.deployment.reset() }
func (m *Mock) Reset()               {}

func (m *Mock) Destroy(context.Context) error {
	m.Rows = nil
	m.Destroyed = true
	return nil
}
