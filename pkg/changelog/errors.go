package changelog

import (
	"fmt"
)

type (
	// ParseError reports a malformed changelog. Line is set for formats that
	// track it.
	ParseError struct {
		File    string
		Line    int
		Message string
		Err     error
	}

	// SetupError reports a problem resolving includes.
	SetupError struct {
		Message string
		Err     error
	}

	// MigrationFailedError wraps a failure while executing a changeset.
	MigrationFailedError struct {
		ChangeSet string
		Err       error
	}

	// RollbackFailedError wraps a failure while rolling back a changeset.
	RollbackFailedError struct {
		ChangeSet string
		Err       error
	}

	// rootError ends an errors.Cause walk at an error built without an
	// underlying Err. It unwraps to that error so errors.As still finds it.
	rootError struct {
		err error
	}
)

func (r *rootError) Error() string { return r.err.Error() }
func (r *rootError) Unwrap() error { return r.err }

// causeOf returns err, or a non-causer stand-in for self when err is nil. Returning
// self directly would never terminate errors.Cause.
func causeOf(self, err error) error {
	if err != nil {
		return err
	}

	return &rootError{err: self}
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Line > 0 {
		return fmt.Sprintf("error parsing %s (line %d): %s", e.File, e.Line, msg)
	}

	return fmt.Sprintf("error parsing %s: %s", e.File, msg)
}

func (e *ParseError) Cause() error  { return causeOf(e, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func (e *SetupError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}

	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *SetupError) Cause() error  { return causeOf(e, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }

func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("migration failed for changeset %s: %v", e.ChangeSet, e.Err)
}

func (e *MigrationFailedError) Cause() error  { return causeOf(e, e.Err) }
func (e *MigrationFailedError) Unwrap() error { return e.Err }

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback failed for changeset %s: %v", e.ChangeSet, e.Err)
}

func (e *RollbackFailedError) Cause() error  { return causeOf(e, e.Err) }
func (e *RollbackFailedError) Unwrap() error { return e.Err }
