package utils

import "fmt"

// StoreError wraps a data-store operation, a human-facing message, and the
// underlying driver error.
type StoreError struct {
	Op  string
	Msg string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError constructs a StoreError.
func NewStoreError(op, msg string, err error) error {
	return &StoreError{Op: op, Msg: msg, Err: err}
}
