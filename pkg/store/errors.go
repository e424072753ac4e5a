package store

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ValidationError.
var (
	ErrMissingMAC        = errors.New("store: MAC address is required")
	ErrMissingDeviceName = errors.New("store: device name is required")
	ErrMissingOwner      = errors.New("store: owner is required")
	ErrUnknownField      = errors.New("store: unknown field")
	ErrImmutableField    = errors.New("store: field cannot be updated")
	ErrNoChanges         = errors.New("store: no fields to update")
	ErrEmptySecretType   = errors.New("store: secret type cannot be empty")
)

// ValidationError reports caller input that fails a precondition.
// It is never retried.
type ValidationError struct {
	// Field names the offending attribute, when there is one.
	Field string
	// Index is the batch position of the offending record, or -1.
	Index int
	// Missing lists absent required keys of a batch record.
	Missing []string
	Msg     string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "store: validation failed"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validation(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Err: err}
}

// StorageError reports a failure of the backing SQLite file.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
