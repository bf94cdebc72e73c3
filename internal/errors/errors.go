// Package errors provides structured error handling for gvmbridge operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Engine session errors.
	CodeConnection ErrorCode = "CONNECTION"
	CodeAuth       ErrorCode = "AUTH"

	// Remote object and scan lifecycle errors.
	CodeRemoteObject   ErrorCode = "REMOTE_OBJECT"
	CodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
	CodeNotReady       ErrorCode = "NOT_READY"
	CodeParse          ErrorCode = "PARSE"
	CodeNotFound       ErrorCode = "NOT_FOUND"

	// Registry store errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
)

// ProtocolError represents an error raised while talking GMP to the
// scanning engine. Command carries the GMP command that failed and
// Status the engine status code when one was received.
type ProtocolError struct {
	Code    ErrorCode
	Message string
	Command string
	Status  string
	Cause   error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("[%s] %s (command: %s)", e.Code, e.Message, e.Command)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// WithStatus records the engine status code on the error.
func (e *ProtocolError) WithStatus(status string) *ProtocolError {
	e.Status = status
	return e
}

// NewProtocolError creates a new protocol error for a GMP command.
func NewProtocolError(code ErrorCode, message, command string) *ProtocolError {
	return &ProtocolError{
		Code:    code,
		Message: message,
		Command: command,
	}
}

// WrapProtocolError wraps an existing error as a protocol error.
func WrapProtocolError(code ErrorCode, message, command string, err error) *ProtocolError {
	return &ProtocolError{
		Code:    code,
		Message: message,
		Command: command,
		Cause:   err,
	}
}

// ScanError represents an error in the scan orchestration layer.
type ScanError struct {
	Code    ErrorCode
	Message string
	ScanID  string
	Target  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	switch {
	case e.ScanID != "":
		return fmt.Sprintf("[%s] %s (scan: %s)", e.Code, e.Message, e.ScanID)
	case e.Target != "":
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithID creates a scan error for a specific scan identifier.
func NewScanErrorWithID(code ErrorCode, message, scanID string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		ScanID:  scanID,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// DatabaseError represents registry store errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ProtocolError:
		return e.Code
	case *ScanError:
		return e.Code
	case *DatabaseError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
// Only transport-level faults on idempotent reads qualify; mutating
// operations go through check-then-create instead of blind retries.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeConnection:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error code to the HTTP status the API boundary
// should answer with. Backend and connection faults are server-side
// (5xx), bad input and unknown identifiers are client-side (4xx).
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyStarted:
		return http.StatusConflict
	case CodeConnection, CodeAuth, CodeRemoteObject, CodeParse:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeValidation, "Invalid target specification", target)
}

// ErrScanNotFound creates an error for unknown scan identifiers.
func ErrScanNotFound(scanID string) *ScanError {
	return NewScanErrorWithID(CodeNotFound, "Scan not found", scanID)
}

// ErrScanNotReady creates an error for scans whose report is not available yet.
func ErrScanNotReady(scanID string) *ScanError {
	return NewScanErrorWithID(CodeNotReady, "Scan has not completed", scanID)
}

// ErrAlreadyStarted creates an error for tasks that were already started.
func ErrAlreadyStarted(taskID string) *ScanError {
	return NewScanError(CodeAlreadyStarted, "Task already started").WithContext("task_id", taskID)
}

// ErrAuthFailed creates an error for failed engine logins.
func ErrAuthFailed(err error) *ProtocolError {
	return WrapProtocolError(CodeAuth, "Engine authentication failed", "authenticate", err)
}

// ErrEngineUnreachable creates an error for failed engine connections.
func ErrEngineUnreachable(err error) *ProtocolError {
	return WrapProtocolError(CodeConnection, "Failed to connect to scanning engine", "", err)
}
