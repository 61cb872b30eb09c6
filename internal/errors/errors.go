// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeValidation indicates a malformed line item reached the engine
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInput indicates malformed top-level input
	TypeInput Type = "INPUT_ERROR"

	// TypeTransport indicates a provider network, timeout or server error
	TypeTransport Type = "PROVIDER_TRANSPORT_ERROR"

	// TypeRateLimited indicates the provider itself rejected the call for rate
	TypeRateLimited Type = "PROVIDER_RATE_LIMITED"

	// TypeAuth indicates rejected provider credentials
	TypeAuth Type = "PROVIDER_AUTH_ERROR"

	// TypeBadRequest indicates the provider rejected the request as malformed
	TypeBadRequest Type = "PROVIDER_BAD_REQUEST"

	// TypeParse indicates a provider response that failed schema validation
	TypeParse Type = "PROVIDER_PARSE_ERROR"

	// TypeCache indicates an unreadable cache entry or cache backend failure
	TypeCache Type = "CACHE_ERROR"

	// TypeTemplate indicates a missing or unrenderable prompt template
	TypeTemplate Type = "TEMPLATE_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"

	// TypeNotFound indicates a resource not found error
	TypeNotFound Type = "NOT_FOUND"
)

// Error represents a domain error with context
type Error struct {
	Type      Type                   `json:"type"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// IsRetryable lets the retry policy check retryability without importing
// the provider packages.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if any error in the chain is of a specific type
func IsType(err error, t Type) bool {
	if e, ok := As(err); ok {
		return e.Type == t
	}
	return false
}

// IsRetryable reports whether the first *Error in the chain is retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// Validation creates a line item validation error
func Validation(message string) *Error {
	return New(TypeValidation, message)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Input creates an input error
func Input(message string, cause error) *Error {
	return Wrap(TypeInput, message, cause)
}

// Transport creates a retryable provider transport error
func Transport(message string, cause error) *Error {
	e := Wrap(TypeTransport, message, cause)
	e.Retryable = true
	return e
}

// RateLimited creates a retryable provider rate limit error
func RateLimited(message string, cause error) *Error {
	e := Wrap(TypeRateLimited, message, cause)
	e.Retryable = true
	return e
}

// Auth creates a non-retryable credential error
func Auth(message string, cause error) *Error {
	return Wrap(TypeAuth, message, cause)
}

// BadRequest creates a non-retryable malformed request error
func BadRequest(message string, cause error) *Error {
	return Wrap(TypeBadRequest, message, cause)
}

// Parse creates a non-retryable response parse error
func Parse(message string, cause error) *Error {
	return Wrap(TypeParse, message, cause)
}

// Cache creates a cache error
func Cache(message string, cause error) *Error {
	return Wrap(TypeCache, message, cause)
}

// Template creates a prompt template error
func Template(message string, cause error) *Error {
	return Wrap(TypeTemplate, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
