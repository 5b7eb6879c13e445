package eventstore

import (
	"errors"
	"fmt"
)

var ErrLockTimeout = errors.New("exclusive section not acquired within lock timeout")

// StorageError reports a connectivity, constraint or lock failure at the store
// boundary. Timeout marks failures to acquire the exclusive section in time.
type StorageError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Timeout {
		if e.Err == nil || errors.Is(e.Err, ErrLockTimeout) {
			return fmt.Sprintf("%s: %v", e.Op, ErrLockTimeout)
		}
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrLockTimeout, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return e != nil && e.Timeout && target == ErrLockTimeout
}

// Wrap returns err as a StorageError for op. Errors that already are storage
// errors are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func TimeoutError(op string, err error) error {
	return &StorageError{Op: op, Timeout: true, Err: err}
}

func IsTimeout(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Timeout
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
