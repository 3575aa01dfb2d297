package faults

import "fmt"

// Failure is embedded by the seeded error kinds. Message and Data survive a
// round trip through the wire fault.
type Failure struct {
	Message string
	Data    Data
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil && f.Message == "" {
		return f.Cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Cause }

func (f *Failure) failure() *Failure { return f }

func newFailure(format string, args []any) Failure {
	if len(args) == 0 {
		return Failure{Message: format}
	}
	return Failure{Message: fmt.Sprintf(format, args...)}
}

// ArgumentError reports an invalid argument.
type ArgumentError struct {
	Failure
	Param string
}

// NewArgumentError creates an ArgumentError for param.
func NewArgumentError(param, format string, args ...any) *ArgumentError {
	return &ArgumentError{Failure: newFailure(format, args), Param: param}
}

// ArgumentNilError reports a missing required argument.
type ArgumentNilError struct {
	Failure
	Param string
}

// NewArgumentNilError creates an ArgumentNilError for param.
func NewArgumentNilError(param string) *ArgumentNilError {
	return &ArgumentNilError{Failure: Failure{Message: "value cannot be nil: " + param}, Param: param}
}

// ArgumentRangeError reports an argument outside its accepted range.
type ArgumentRangeError struct {
	Failure
	Param string
}

// NewArgumentRangeError creates an ArgumentRangeError for param.
func NewArgumentRangeError(param, format string, args ...any) *ArgumentRangeError {
	return &ArgumentRangeError{Failure: newFailure(format, args), Param: param}
}

// FormatError reports malformed input.
type FormatError struct{ Failure }

func NewFormatError(format string, args ...any) *FormatError {
	return &FormatError{newFailure(format, args)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct{ Failure }

func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{newFailure(format, args)}
}

// KeyNotFoundError reports a missing key in a keyed collection.
type KeyNotFoundError struct {
	Failure
	Key string
}

func NewKeyNotFoundError(key string) *KeyNotFoundError {
	return &KeyNotFoundError{Failure: Failure{Message: "key not found: " + key}, Key: key}
}

// IOError reports an I/O failure.
type IOError struct{ Failure }

func NewIOError(cause error, format string, args ...any) *IOError {
	f := newFailure(format, args)
	f.Cause = cause
	return &IOError{f}
}

// FileNotFoundError reports a missing file.
type FileNotFoundError struct {
	Failure
	Path string
}

func NewFileNotFoundError(path string) *FileNotFoundError {
	return &FileNotFoundError{Failure: Failure{Message: "file not found: " + path}, Path: path}
}

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct{ Failure }

func NewTimeoutError(format string, args ...any) *TimeoutError {
	return &TimeoutError{newFailure(format, args)}
}

// CanceledError reports an operation canceled by its caller.
type CanceledError struct{ Failure }

func NewCanceledError(format string, args ...any) *CanceledError {
	return &CanceledError{newFailure(format, args)}
}

// SerializationError reports a payload that could not be encoded or decoded.
type SerializationError struct{ Failure }

func NewSerializationError(cause error, format string, args ...any) *SerializationError {
	f := newFailure(format, args)
	f.Cause = cause
	return &SerializationError{f}
}

// BusinessRuleError reports a violated business rule.
type BusinessRuleError struct {
	Failure
	Rule string
}

func NewBusinessRuleError(rule, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Failure: newFailure(format, args), Rule: rule}
}

// Violation is a single failed validation rule.
type Violation struct {
	Field   string
	Message string
}

// ValidationError reports one or more invalid fields. Violations become the
// fault's nested details.
type ValidationError struct {
	Failure
	Violations []Violation
}

func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{
		Failure:    Failure{Message: fmt.Sprintf("validation failed: %d violation(s)", len(violations))},
		Violations: violations,
	}
}

// ConcurrencyError reports a lost optimistic-concurrency race.
type ConcurrencyError struct{ Failure }

func NewConcurrencyError(format string, args ...any) *ConcurrencyError {
	return &ConcurrencyError{newFailure(format, args)}
}

// AlreadyExistsError reports a duplicate entity.
type AlreadyExistsError struct{ Failure }

func NewAlreadyExistsError(format string, args ...any) *AlreadyExistsError {
	return &AlreadyExistsError{newFailure(format, args)}
}

// UnauthenticatedError reports missing or invalid credentials.
type UnauthenticatedError struct{ Failure }

func NewUnauthenticatedError(format string, args ...any) *UnauthenticatedError {
	return &UnauthenticatedError{newFailure(format, args)}
}

// UnauthorizedError reports a caller without permission.
type UnauthorizedError struct{ Failure }

func NewUnauthorizedError(format string, args ...any) *UnauthorizedError {
	return &UnauthorizedError{newFailure(format, args)}
}

// NotImplementedError reports an operation that is not available.
type NotImplementedError struct{ Failure }

func NewNotImplementedError(format string, args ...any) *NotImplementedError {
	return &NotImplementedError{newFailure(format, args)}
}

// RateLimitedError reports a caller over its request budget.
type RateLimitedError struct {
	Failure
	Key string
}

func NewRateLimitedError(key string) *RateLimitedError {
	return &RateLimitedError{Failure: Failure{Message: "rate limit exceeded"}, Key: key}
}

// UnavailableError reports a dependency that cannot serve right now.
type UnavailableError struct{ Failure }

func NewUnavailableError(format string, args ...any) *UnavailableError {
	return &UnavailableError{newFailure(format, args)}
}

// ConflictError is returned by RegisterMapping when a new mapping would break
// the one-to-one correspondence between error kinds and fault kinds.
type ConflictError struct {
	ErrorKind Kind
	FaultKind FaultKind
	// ExistingFault is the fault kind ErrorKind is already mapped to, if any.
	ExistingFault FaultKind
	// ExistingError is the error kind FaultKind is already mapped to, if any.
	ExistingError Kind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("faults:registry - cannot map %s to %s: %s is mapped to %s, %s is mapped to %s",
		e.ErrorKind, e.FaultKind,
		e.ErrorKind, orDash(string(e.ExistingFault)),
		e.FaultKind, orDash(string(e.ExistingError)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
