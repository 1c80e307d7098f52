package kv

import (
	"errors"
	"fmt"
)

// Error codes mirror the domain error codes to avoid a circular import.
// The ledger and registry translate these into their degradation behavior.
const (
	codeInvalid     = "invalid"
	codeNotFound    = "not_found"
	codeUnavailable = "unavailable"
)

// StoreError is a kv-specific error with a code and message.
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == codeNotFound
}

// IsUnavailable reports whether err indicates the medium itself failed.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == codeUnavailable
}

// ErrKeyNotFound creates an error for a missing key.
func ErrKeyNotFound(key string) error {
	return &StoreError{
		Code:    codeNotFound,
		Message: fmt.Sprintf("key not found: %s", key),
	}
}

// ErrUnavailable creates an error for an unreachable or corrupt medium.
func ErrUnavailable(err error, message string) error {
	return &StoreError{
		Code:    codeUnavailable,
		Message: message,
		Err:     err,
	}
}

// ErrUnknownProvider creates an error for unknown kv providers.
func ErrUnknownProvider(provider string) error {
	return &StoreError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("unknown kv provider: %s", provider),
	}
}
