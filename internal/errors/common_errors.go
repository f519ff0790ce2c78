package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeNetwork          ErrorType = "NETWORK"
	ErrTypeParsing          ErrorType = "PARSING"
	ErrTypeStorage          ErrorType = "STORAGE"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeNotFound         ErrorType = "NOT_FOUND"
	ErrTypeConfig           ErrorType = "CONFIG"
	ErrTypeAuthentication   ErrorType = "AUTHENTICATION"
	ErrTypeHeartbeat        ErrorType = "HEARTBEAT"
	ErrTypeInvalidResponse  ErrorType = "INVALID_RESPONSE"
	ErrTypeDownload         ErrorType = "DOWNLOAD"
	ErrTypeNoContent        ErrorType = "NO_CONTENT"
	ErrTypeInvalidDataframe ErrorType = "INVALID_DATAFRAME"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// Validationf formats a validation error.
func Validationf(format string, args ...interface{}) *AppError {
	return NewAppError(ErrTypeValidation, fmt.Sprintf(format, args...), nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// DataQuery errors

// NewAuthenticationError is returned when the API rejects credentials.
func NewAuthenticationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAuthentication, message, cause)
}

// NewHeartbeatError is returned when the heartbeat endpoint refuses the session.
func NewHeartbeatError(message string, cause error) *AppError {
	return NewAppError(ErrTypeHeartbeat, message, cause)
}

// NewInvalidResponseError covers non-200, empty and malformed payloads.
func NewInvalidResponseError(message string, cause error) *AppError {
	return NewAppError(ErrTypeInvalidResponse, message, cause)
}

// NewDownloadError is returned when retries are exhausted.
func NewDownloadError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDownload, message, cause)
}

// NewNoContentError maps the API's info.code 204.
func NewNoContentError(message string) *AppError {
	return NewAppError(ErrTypeNoContent, message, nil)
}

// NewInvalidDataframeError is returned when a download yields no usable frame.
func NewInvalidDataframeError(message string) *AppError {
	return NewAppError(ErrTypeInvalidDataframe, message, nil)
}

// TypeOf returns the ErrorType of the first AppError in the chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsValidationError(err error) bool     { return TypeOf(err) == ErrTypeValidation }
func IsNotFoundError(err error) bool       { return TypeOf(err) == ErrTypeNotFound }
func IsAuthenticationError(err error) bool { return TypeOf(err) == ErrTypeAuthentication }
func IsHeartbeatError(err error) bool      { return TypeOf(err) == ErrTypeHeartbeat }
func IsInvalidResponseError(err error) bool {
	return TypeOf(err) == ErrTypeInvalidResponse
}
func IsDownloadError(err error) bool  { return TypeOf(err) == ErrTypeDownload }
func IsNoContentError(err error) bool { return TypeOf(err) == ErrTypeNoContent }
func IsInvalidDataframeError(err error) bool {
	return TypeOf(err) == ErrTypeInvalidDataframe
}
