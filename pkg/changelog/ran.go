package changelog

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
)

const (
	ExecExecuted ExecType = "EXECUTED"
	ExecFailed   ExecType = "FAILED"
	ExecSkipped  ExecType = "SKIPPED"
	ExecReran    ExecType = "RERAN"
	ExecMarkRan  ExecType = "MARK_RAN"
)

const (
	NotRan RunStatus = iota
	AlreadyRan
	RunAgain
	InvalidCheckSum
)

type (
	// ExecType is the outcome recorded in history.
	ExecType string

	// RunStatus is the state of a changeset relative to history.
	RunStatus int

	// RanChangeSet is one history row.
	RanChangeSet struct {
		ChangeLog     string
		ID            string
		Author        string
		CheckSum      checksum.CheckSum
		DateExecuted  time.Time
		OrderExecuted int
		ExecType      ExecType
		Description   string
		Comments      string
		Tag           string
		Contexts      string
		Labels        string
		DeploymentID  string
		Version       string
	}
)

// ParseExecType reads a stored exec type.
func ParseExecType(s string) (ExecType, error) {
	switch et := ExecType(strings.ToUpper(strings.TrimSpace(s))); et {
	case ExecExecuted, ExecFailed, ExecSkipped, ExecReran, ExecMarkRan:
		return et, nil
	default:
		return "", errors.Errorf("unknown exec type %q", s)
	}
}

// Ran reports whether the exec type counts as applied.
func (e ExecType) Ran() bool {
	return e == ExecExecuted || e == ExecReran || e == ExecMarkRan
}

func (s RunStatus) String() string {
	switch s {
	case NotRan:
		return "NOT_RAN"
	case AlreadyRan:
		return "ALREADY_RAN"
	case RunAgain:
		return "RUN_AGAIN"
	default:
		return "INVALID_MD5SUM"
	}
}

// NewRanChangeSet builds the history row for an executed changeset.
func NewRanChangeSet(cs *ChangeSet, execType ExecType, database string) *RanChangeSet {
	executed := cs.FinishedAt
	if executed.IsZero() {
		executed = time.Now()
	}

	return &RanChangeSet{
		ChangeLog:    cs.FilePath,
		ID:           cs.ID,
		Author:       cs.Author,
		CheckSum:     cs.CheckSum(checksum.Latest, database),
		DateExecuted: executed,
		ExecType:     execType,
		Description:  cs.Description(),
		Comments:     cs.Comments,
		Tag:          cs.Tag(),
		Contexts:     cs.ContextString(),
		Labels:       cs.EffectiveLabels().String(),
	}
}

// String returns the identity, path::id::author.
func (r *RanChangeSet) String() string {
	return NormalizePath(r.ChangeLog) + "::" + r.ID + "::" + r.Author
}

// IsSameAs reports whether the row records cs.
func (r *RanChangeSet) IsSameAs(cs *ChangeSet) bool {
	return sameIdentity(r.ChangeLog, r.ID, r.Author, cs.FilePath, cs.ID, cs.Author)
}

// Matches reports whether the row has the given identity.
func (r *RanChangeSet) Matches(path, id, author string) bool {
	return sameIdentity(r.ChangeLog, r.ID, r.Author, path, id, author)
}
