package store

import (
	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/resilience"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("not found")

// StorageError wraps a failure reported by the underlying database. Callers
// use errors.As to tell persistence failures apart from validation errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps a driver error. Lock contention, serialization failures
// and dropped connections are marked transient so callers can retry them.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsTransient(err) {
		err = resilience.NewTransientError(err)
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(entity, id any) error {
	return eris.Wrapf(ErrNotFound, "%v %v", entity, id)
}
