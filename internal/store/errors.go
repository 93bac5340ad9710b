package store

import (
	"errors"
	"fmt"

	"github.com/Tiliavir/hours-tracker/internal/model"
)

var (
	// ErrConfirmationRequired is returned by destructive operations called
	// without the caller's explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrNotFound is returned when an id does not match any record.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports bad user input. No state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that an entry already exists for the same date and
// workplace. Retry with replace to overwrite it.
type ConflictError struct {
	Existing model.TimeEntry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an entry for %s at %q already exists", e.Existing.Date, e.Existing.Workplace)
}

// StorageError reports a failed write to the storage medium. The in-memory
// state was updated regardless and stays authoritative for the session.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error saving %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageWarning reports whether err only signals a failed persist, meaning
// the operation itself succeeded.
func IsStorageWarning(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
