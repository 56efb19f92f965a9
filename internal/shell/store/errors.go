// Package store persists the run history journal.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no run matches the requested ID.
	ErrNotFound = errors.New("run not found")

	// ErrDuplicateID is returned when a run or component result is journaled twice.
	ErrDuplicateID = errors.New("record already journaled")

	// ErrForeignKey is returned when a component result names an unknown run.
	ErrForeignKey = errors.New("component result references unknown run")

	// ErrConnectionFailed is returned when the history database cannot be opened.
	ErrConnectionFailed = errors.New("history database unavailable")

	// ErrMigrationFailed is returned when the history schema cannot be applied.
	ErrMigrationFailed = errors.New("history schema migration failed")

	// ErrInvalidData is returned when a stored timestamp cannot be decoded.
	ErrInvalidData = errors.New("corrupt journal record")

	// ErrTxFailed is returned when a journal transaction cannot begin or commit.
	ErrTxFailed = errors.New("journal transaction failed")
)

// StoreError records which journal operation failed and on which record.
type StoreError struct {
	Op     string // e.g. "CreateRun"
	Record string // "run" or "component_result"
	RunID  string
	Detail string
	Err    error
}

func (e *StoreError) Error() string {
	switch {
	case e.RunID != "":
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Record, e.RunID, e.Detail)
	case e.Record != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Record, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op, record, runID, detail string, err error) *StoreError {
	return &StoreError{Op: op, Record: record, RunID: runID, Detail: detail, Err: err}
}
