package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups of deals, shops, or categories that do not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrInvalidParameter is returned when a request parameter is out of range or
// malformed. Public search endpoints translate it into an empty result; the
// error form is for internal and administrative callers.
type ErrInvalidParameter struct {
	Field  string
	Reason string
}

func (e ErrInvalidParameter) Error() string {
	return e.Field + ": " + e.Reason
}

// StoreError wraps a backing-store failure. It is propagated to the caller
// unmodified so "no results" stays distinguishable from "couldn't ask".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("deal store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr wraps err as a StoreError unless it is nil or a NotFound.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
