package models

import (
	"errors"
	"fmt"

	"github.com/timshannon/bolthold"
)

// StoreErrorKind classifies persistent store failures
type StoreErrorKind string

const (
	StoreNotFound   StoreErrorKind = "not-found"
	StoreConstraint StoreErrorKind = "constraint-violation"
	StoreIO         StoreErrorKind = "io-failure"
)

// StoreError is the error type surfaced by every Database operation.
// Callers must treat a ReplaceSnapshot failure as "previous snapshot still
// authoritative".
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := StoreIO
	if errors.Is(err, bolthold.ErrNotFound) {
		kind = StoreNotFound
	} else if errors.Is(err, bolthold.ErrKeyExists) || errors.Is(err, bolthold.ErrUniqueExists) {
		kind = StoreConstraint
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// IsNotFound reports whether err is a StoreError with the not-found kind
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == StoreNotFound
}
