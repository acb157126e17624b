package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError is returned for malformed input or a violated invariant.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError is returned when a referenced period, manager, edge or payout does not exist.
type NotFoundError struct {
	Resource string
	Id       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Id)
}

// Is lets errors.Is(err, ErrorRecordNotFound) match typed not-found errors.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrorRecordNotFound
}

// ConfigurationError blocks an operation until an admin fixes the setup
// (missing rule set, missing rate, locked period).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// BusyError is returned when a lock is held by another run; the caller may retry.
type BusyError struct {
	Reason string
}

func (e *BusyError) Error() string { return e.Reason }

// TemporalError is returned when the exchange-rate instant has not been reached yet.
type TemporalError struct {
	Reason string
}

func (e *TemporalError) Error() string { return e.Reason }

// ExternalServiceError is returned when every exchange-rate source failed.
// FallbackRate is only a suggestion; it is never applied automatically.
type ExternalServiceError struct {
	Reason       string
	FallbackRate decimal.Decimal
	Causes       []error
}

func (e *ExternalServiceError) Error() string { return e.Reason }

func (e *ExternalServiceError) Unwrap() []error { return e.Causes }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(resource string, id any) error {
	return &NotFoundError{Resource: resource, Id: id}
}

func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func NewBusyError(format string, args ...any) error {
	return &BusyError{Reason: fmt.Sprintf(format, args...)}
}

func NewTemporalError(format string, args ...any) error {
	return &TemporalError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrorRecordNotFound)
}

func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func IsTemporalError(err error) bool {
	var e *TemporalError
	return errors.As(err, &e)
}

func IsBusyError(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}
