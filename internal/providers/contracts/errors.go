/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package contracts

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound indicates resource not found
	ErrorTypeNotFound ErrorType = "NotFound"
	// ErrorTypeAlreadyExists indicates a name collision
	ErrorTypeAlreadyExists ErrorType = "AlreadyExists"
	// ErrorTypeInvalidSpec indicates invalid specification
	ErrorTypeInvalidSpec ErrorType = "InvalidSpec"
	// ErrorTypePrecondition indicates the resource is in the wrong state for the request
	ErrorTypePrecondition ErrorType = "Precondition"
	// ErrorTypeTimeout indicates a bounded wait gave up
	ErrorTypeTimeout ErrorType = "Timeout"
	// ErrorTypeBackend indicates the backend rejected the request
	ErrorTypeBackend ErrorType = "Backend"
	// ErrorTypeRetryable indicates a transient error
	ErrorTypeRetryable ErrorType = "Retryable"
	// ErrorTypeUnauthorized indicates authentication/authorization failure
	ErrorTypeUnauthorized ErrorType = "Unauthorized"
	// ErrorTypeNotSupported indicates unsupported operation
	ErrorTypeNotSupported ErrorType = "NotSupported"
	// ErrorTypeUnavailable indicates the backend is temporarily unavailable
	ErrorTypeUnavailable ErrorType = "Unavailable"
	// ErrorTypeInternal indicates a fault inside the adapter itself
	ErrorTypeInternal ErrorType = "Internal"
)

// ProviderError represents a categorized error from a provider
type ProviderError struct {
	// Type categorizes the error
	Type ErrorType
	// Message describes the error
	Message string
	// Cause contains the underlying error
	Cause error
	// Retryable indicates if the operation should be retried
	Retryable bool
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is retryable
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable || e.Type == ErrorTypeRetryable || e.Type == ErrorTypeUnavailable
}

// Reason returns the human readable message without the category prefix
func (e *ProviderError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Type)
}

func newError(t ErrorType, message string, cause error) *ProviderError {
	return &ProviderError{
		Type:    t,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string, cause error) *ProviderError {
	return newError(ErrorTypeNotFound, message, cause)
}

// NewAlreadyExistsError creates a name collision error
func NewAlreadyExistsError(message string, cause error) *ProviderError {
	return newError(ErrorTypeAlreadyExists, message, cause)
}

// NewInvalidSpecError creates an invalid spec error
func NewInvalidSpecError(message string, cause error) *ProviderError {
	return newError(ErrorTypeInvalidSpec, message, cause)
}

// NewPreconditionError creates a precondition error
func NewPreconditionError(message string, cause error) *ProviderError {
	return newError(ErrorTypePrecondition, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string, cause error) *ProviderError {
	return newError(ErrorTypeTimeout, message, cause)
}

// NewBackendError creates a backend rejection error
func NewBackendError(message string, cause error) *ProviderError {
	return newError(ErrorTypeBackend, message, cause)
}

// NewRetryableError creates a retryable error
func NewRetryableError(message string, cause error) *ProviderError {
	e := newError(ErrorTypeRetryable, message, cause)
	e.Retryable = true
	return e
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string, cause error) *ProviderError {
	return newError(ErrorTypeUnauthorized, message, cause)
}

// NewNotSupportedError creates a not supported error
func NewNotSupportedError(message string) *ProviderError {
	return newError(ErrorTypeNotSupported, message, nil)
}

// NewUnavailableError creates an unavailable error
func NewUnavailableError(message string, cause error) *ProviderError {
	e := newError(ErrorTypeUnavailable, message, cause)
	e.Retryable = true
	return e
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *ProviderError {
	return newError(ErrorTypeInternal, message, cause)
}

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsAlreadyExists reports whether err is a name collision error
func IsAlreadyExists(err error) bool {
	return IsType(err, ErrorTypeAlreadyExists)
}

// IsType reports whether err carries the given category
func IsType(err error, t ErrorType) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Type == t
}

// IsRetryable reports whether err should be retried
func IsRetryable(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.IsRetryable()
}
