// Package errors provides standardized error handling for the treatment review pipeline.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeDocumentReadFailed ErrorCode = "DOCUMENT_READ_FAILED"

	ErrCodeCompletionServiceFailed ErrorCode = "COMPLETION_SERVICE_FAILED"
	ErrCodeCompletionTimeout       ErrorCode = "COMPLETION_TIMEOUT"

	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeFollowUpMismatch       ErrorCode = "FOLLOW_UP_MISMATCH"
	ErrCodeAmbiguousLibraryMatch  ErrorCode = "AMBIGUOUS_LIBRARY_MATCH"
	ErrCodeLibraryLoadFailed      ErrorCode = "LIBRARY_LOAD_FAILED"
	ErrCodeOutputWriteFailed      ErrorCode = "OUTPUT_WRITE_FAILED"
	ErrCodeArchiveFailed          ErrorCode = "ARCHIVE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeBrokerRejected    ErrorCode = "BROKER_REJECTED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Coded is implemented by domain errors that know their ErrorCode.
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ErrorCode implements Coded.
func (e *StandardError) ErrorCode() ErrorCode {
	return e.Code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewCompletionTimeoutError creates a retryable completion timeout error.
func NewCompletionTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionTimeout,
		Message:   "Completion service timeout",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable validation error for a model reply or job payload.
func NewValidationFailedError(schema string, fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Payload does not match the expected schema",
		Details:   fmt.Sprintf("schema: %s, fields: %s", schema, strings.Join(fields, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewArchiveFailedError creates a retryable archive error.
func NewArchiveFailedError(sink string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeArchiveFailed,
		Message:   fmt.Sprintf("Failed to archive results to %s", sink),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   fmt.Sprintf("Failed to send %s notification", channel),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBrokerError wraps a failed Zeebe command. Unavailable brokers are retryable.
func NewBrokerError(operation string, err error, retryable bool) *StandardError {
	code := ErrCodeBrokerRejected
	if retryable {
		code = ErrCodeBrokerUnavailable
	}
	return &StandardError{
		Code:      code,
		Message:   fmt.Sprintf("Zeebe operation '%s' failed", operation),
		Details:   err.Error(),
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Normalization & BPMN conversion
// ==========================

// Normalize maps any error chain to a StandardError. Coded errors keep their code,
// context deadlines become completion timeouts, everything else is internal.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	var coded Coded
	if stderrors.As(err, &coded) {
		code := coded.ErrorCode()
		return &StandardError{
			Code:      code,
			Message:   err.Error(),
			Details:   err.Error(),
			Retryable: IsRetryableErrorCode(code),
			Timestamp: time.Now().UTC(),
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewCompletionTimeoutError(err)
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// GetRetryCount returns the recommended retry count for a job failing with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCompletionServiceFailed,
		ErrCodeBrokerUnavailable,
		ErrCodeArchiveFailed,
		ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeCompletionTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"errorCategory":     GetErrorCategory(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "FORMAT") || strings.Contains(codeStr, "DOCUMENT"):
		return "INGESTION"
	case strings.Contains(codeStr, "COMPLETION"):
		return "AI"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MISMATCH"):
		return "VALIDATION"
	case strings.Contains(codeStr, "LIBRARY"):
		return "LIBRARY"
	case strings.Contains(codeStr, "OUTPUT") || strings.Contains(codeStr, "ARCHIVE"):
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "BROKER"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
