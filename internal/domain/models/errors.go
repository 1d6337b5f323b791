package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPrice is returned when a quote response carries no price field.
	ErrMissingPrice = errors.New("price field missing")
	// ErrInvalidPrice is returned for non-numeric, non-finite or non-positive prices.
	ErrInvalidPrice = errors.New("price invalid")
)

// FetchError wraps any failure talking to the price source.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a rejected or failed store call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError reports a failed send to one subscriber.
type DeliveryError struct {
	ConnID uint64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to subscriber %d: %v", e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewPersistenceError returns nil when err is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
