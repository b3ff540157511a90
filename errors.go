package mongolite

import (
	"errors"
	"fmt"

	"github.com/madhouselabs/mongolite/internal/translate"
)

// Sentinel errors callers can compare against with errors.Is, mirroring
// the flat sentinel-error taxonomy of the database layer this module is
// built on top of.
var (
	ErrNoDocuments       = errors.New("mongolite: no documents in result")
	ErrNotConnected      = errors.New("mongolite: not connected")
	ErrDuplicateKey      = errors.New("mongolite: duplicate key")
	ErrInvalidID         = errors.New("mongolite: invalid id")
	ErrChangeStreamClosed = errors.New("mongolite: change stream is closed")

	// ErrImmutableID is re-exported from internal/translate so callers
	// only ever need to import this package's errors.
	ErrImmutableID = translate.ErrImmutableID
)

// ValidationError wraps a rejected document, filter, update or
// projection with the field that failed and why (§7).
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mongolite: validation failed: %v", e.Err)
	}
	return fmt.Sprintf("mongolite: validation failed on %q: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func newValidationError(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Err: err}
}

// ConstraintError wraps a UNIQUE violation raised by InsertOne or
// InsertMany: a duplicate _id, or a collision on a UNIQUE index.
type ConstraintError struct {
	Collection string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("mongolite: constraint violated on %q: %v", e.Collection, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// EngineError wraps an underlying SQLite failure — a closed handle, a
// malformed statement, disk I/O, and the like. Only the insert paths
// report UNIQUE violations as ConstraintError; every other operation
// wraps a constraint violation as an EngineError too.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("mongolite: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func wrapEngineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
