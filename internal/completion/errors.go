package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "treatment-review/internal/common/errors"
)

// ServiceError is a failed exchange with the completion service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coded.
func (e *ServiceError) ErrorCode() apperrors.ErrorCode {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return apperrors.ErrCodeCompletionTimeout
	}
	return apperrors.ErrCodeCompletionServiceFailed
}

// APIError is a non-2xx response from the completion endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimitError() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.IsRateLimitError() || e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
}

// ErrEmptyReply is returned when the service answers without any choice.
var ErrEmptyReply = errors.New("completion returned no choices")
