package store

import (
	"errors"
	"fmt"
)

// Persistence failures. Each one is per record and never aborts a batch.
var (
	// ErrDuplicate is returned when the record's key already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNullConstraint is returned when the backend rejected a missing column value.
	ErrNullConstraint = errors.New("required column is null")

	// ErrConnectivity is returned when the backend could not be reached.
	ErrConnectivity = errors.New("store unreachable")

	// ErrMissingField is returned by Validate for a record with an empty field.
	// Such a record is never submitted.
	ErrMissingField = errors.New("record is missing a required field")

	// ErrInvalidTable is returned for a table name that is not a plain identifier.
	ErrInvalidTable = errors.New("invalid table name")

	// ErrInsertFailed is returned for any other backend failure.
	ErrInsertFailed = errors.New("insert failed")
)

// StoreError wraps errors with the operation and details of a persistence failure.
type StoreError struct {
	// Op is the operation that failed (e.g., "Insert", "OpenPostgres").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *StoreError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("store: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new StoreError.
func NewStoreError(op string, err error, details string) *StoreError {
	return &StoreError{Op: op, Err: err, Details: details}
}

// WrapStoreError wraps an error as a StoreError if it isn't already one.
func WrapStoreError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return NewStoreError(op, err, details)
}
