package storage

import (
	"errors"

	"github.com/zeebo/errs"
)

// ErrUnavailable is the error class for every failure of the underlying
// store. Use ErrUnavailable.Has(err) to recognize it.
var ErrUnavailable = errs.Class("store unavailable")

// ErrConflict is returned by backends that use optimistic transactions when
// the retry budget for a contended key is exhausted.
var ErrConflict = errors.New("counter update conflict")

// passthrough marks errors produced by an UpdateFunc. Backends return them
// unwrapped so callers can inspect their own abort reasons.
type passthrough struct{ err error }

func (p passthrough) Error() string { return p.err.Error() }
func (p passthrough) Unwrap() error { return p.err }

// unwrapAbort returns the UpdateFunc error if err carries one.
func unwrapAbort(err error) (error, bool) {
	var p passthrough
	if errors.As(err, &p) {
		return p.err, true
	}
	return nil, false
}

// ErrEmptyKey is returned when an operation is called with an empty key.
var ErrEmptyKey = errors.New("counter key cannot be empty")
