package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type StoreErrorKind string

const (
	ErrKindUnavailable StoreErrorKind = "unavailable"
	ErrKindConflict    StoreErrorKind = "conflict"
)

var (
	ErrConflict    = errors.New("revision conflict")
	ErrUnavailable = errors.New("store unavailable")
)

type StoreError struct {
	Kind  StoreErrorKind
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store %s during %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("store %s during %s", e.Kind, e.Op)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// Is lets callers match on errors.Is(err, ErrConflict) without errors.As.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Kind == ErrKindConflict
	case ErrUnavailable:
		return e.Kind == ErrKindUnavailable
	}
	return false
}

func conflict(op, fingerprint string, expected int) error {
	return &StoreError{
		Kind:  ErrKindConflict,
		Op:    op,
		Cause: fmt.Errorf("article %s is no longer at revision %d", fingerprint, expected),
	}
}

// wrap classifies a driver error. Busy, locked and closed databases as
// well as expired contexts become unavailable; anything else is returned
// wrapped with the operation name.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	if isUnavailable(err) {
		return &StoreError{Kind: ErrKindUnavailable, Op: op, Cause: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return true
		}
	}

	// database/sql does not export its closed-pool error.
	return strings.Contains(err.Error(), "database is closed")
}
