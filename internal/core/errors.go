package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInvalidDate       = errors.New("invalid date")
	ErrEmptyProductCode  = errors.New("empty product code")
	ErrNameTooLong       = errors.New("product name too long (max 200 characters)")
	ErrEmptyPatch        = errors.New("nothing to update")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidRange      = errors.New("start date after end date")
	ErrNotFound          = errors.New("not found")
	ErrAmbiguousLineItem = errors.New("more than one line item matches")
)

// ValidationError reports bad input. It is always returned before any mutation.
type ValidationError struct {
	Field string
	Err   error
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransactionError reports a storage transaction that was rolled back.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction rolled back: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ExternalSourceError reports an unavailable product or price source.
type ExternalSourceError struct {
	Source string
	Err    error
}

func (e *ExternalSourceError) Error() string {
	return fmt.Sprintf("external source %s unavailable: %v", e.Source, e.Err)
}

func (e *ExternalSourceError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransaction reports whether err carries a TransactionError.
func IsTransaction(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}

// IsExternalSource reports whether err carries an ExternalSourceError.
func IsExternalSource(err error) bool {
	var xe *ExternalSourceError
	return errors.As(err, &xe)
}
