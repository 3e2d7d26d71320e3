package errors

import (
	"errors"
	"fmt"
)

var (
	ErrStorage         = fmt.Errorf("storage error")
	ErrMalformedEvent  = fmt.Errorf("malformed event")
	ErrAnonymousSender = fmt.Errorf("%w: sender has no username", ErrMalformedEvent)
	ErrForbiddenThread = fmt.Errorf("thread is not readable by this user")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)

// StorageError reports a failed call to the conversation store.
// It matches ErrStorage with errors.Is and unwraps to the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Malformed wraps a validation failure so that it matches ErrMalformedEvent.
func Malformed(err error) error {
	if errors.Is(err, ErrMalformedEvent) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
}
