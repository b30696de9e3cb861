package database

import (
	"context"
	"strings"
	"sync"
)

// Mock is an in-memory Database for tests. It records executed statements,
// answers queries from canned results and reports the tables listed in Tables.
type Mock struct {
	base

	mu sync.Mutex

	// Statements holds every statement passed to Exec, in order.
	Statements []string

	// Results maps a query substring to the rows returned for it.
	Results map[string][]Row

	// Failures maps a statement substring to the error Exec returns for it.
	Failures map[string]error

	// Tables holds upper-cased names of tables that exist.
	Tables map[string][]Column

	Commits   int
	Rollbacks int
	inTx      bool
}

var _ Database = (*Mock)(nil)

// NewMock returns a Mock using dialect d.
func NewMock(d Dialect) *Mock {
	return &Mock{
		base:     newBase(d, Config{URL: "mock://" + d.ShortName()}),
		Results:  make(map[string][]Row),
		Failures: make(map[string]error),
		Tables:   make(map[string][]Column),
	}
}

func (m *Mock) Exec(_ context.Context, query string, _ ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for frag, err := range m.Failures {
		if strings.Contains(query, frag) {
			return &Error{Statement: query, Err: err}
		}
	}

	m.Statements = append(m.Statements, query)
	return nil
}

func (m *Mock) Query(_ context.Context, query string, _ ...any) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for frag, err := range m.Failures {
		if strings.Contains(query, frag) {
			return nil, &Error{Statement: query, Err: err}
		}
	}

	for frag, rows := range m.Results {
		if strings.Contains(query, frag) {
			return rows, nil
		}
	}

	return nil, nil
}

func (m *Mock) Begin(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inTx = true
	return nil
}

func (m *Mock) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inTx {
		m.Commits++
	}
	m.inTx = false
	return nil
}

func (m *Mock) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inTx {
		m.Rollbacks++
	}
	m.inTx = false
	return nil
}

func (m *Mock) SetAutoCommit(on bool) error {
	m.autoCommit = on
	if on {
		return m.Commit()
	}

	return nil
}

func (m *Mock) TableExists(_ context.Context, _, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.Tables[strings.ToUpper(table)]
	return ok, nil
}

func (m *Mock) Columns(_ context.Context, _, table string) ([]Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Tables[strings.ToUpper(table)], nil
}

func (m *Mock) Close() error { return nil }

// Executed returns a copy of the recorded statements.
func (m *Mock) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.Statements...)
}
