package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// getRequestIDFromContext extracts request ID from context
func getRequestIDFromContext(ctx context.Context) string {
	val := ctx.Value("requestID")
	if requestID, ok := val.(string); ok {
		return requestID
	}
	return ""
}

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation            ErrorType = "VALIDATION"
	ErrorTypeIdempotencyConflict   ErrorType = "IDEMPOTENCY_CONFLICT"
	ErrorTypeIdempotencyInProgress ErrorType = "IDEMPOTENCY_IN_PROGRESS"
	ErrorTypeRateLimited           ErrorType = "RATE_LIMITED"
	ErrorTypeUnsupportedPlatform   ErrorType = "UNSUPPORTED_PLATFORM"
	ErrorTypeNotSupported          ErrorType = "NOT_SUPPORTED"
	ErrorTypeAdapterFailure        ErrorType = "ADAPTER_FAILURE"
	ErrorTypeQueryRejected         ErrorType = "QUERY_REJECTED"
	ErrorTypeAuditWriteFailed      ErrorType = "AUDIT_WRITE_FAILED"
	ErrorTypeNotFound              ErrorType = "NOT_FOUND"
	ErrorTypeInternal              ErrorType = "INTERNAL"
)

// Layer represents the application layer where the error occurred
type Layer string

const (
	LayerPipeline       Layer = "pipeline"
	LayerIdempotency    Layer = "idempotency"
	LayerRateLimit      Layer = "ratelimit"
	LayerAudit          Layer = "audit"
	LayerConnector      Layer = "connector"
	LayerQuery          Layer = "query"
	LayerRoute          Layer = "route"
	LayerInfrastructure Layer = "infrastructure"
)

// PlatformError represents an error with context and metadata
type PlatformError struct {
	Type      ErrorType
	Message   string
	Err       error
	Context   map[string]any
	RequestID string
	Layer     Layer
	Timestamp time.Time

	// RetryAfter carries the backoff hint for RATE_LIMITED and
	// IDEMPOTENCY_IN_PROGRESS errors; zero elsewhere.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s][%s] %s: %v", e.Layer, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s][%s] %s", e.Layer, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// GetErrorType returns the error type
func (e *PlatformError) GetErrorType() ErrorType {
	return e.Type
}

// Retryable reports whether the caller may safely retry the invocation,
// reusing the same idempotency key where one was supplied.
func (e *PlatformError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimited, ErrorTypeIdempotencyInProgress, ErrorTypeAdapterFailure:
		return true
	default:
		return false
	}
}

// NewError creates a new PlatformError with the specified parameters
func NewError(ctx context.Context, layer Layer, errorType ErrorType, message string, err error) *PlatformError {
	return NewErrorWithContext(ctx, layer, errorType, message, err, nil)
}

// NewErrorWithContext creates a new PlatformError with additional context fields
func NewErrorWithContext(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, contextFields map[string]any) *PlatformError {
	errorContext := make(map[string]any)
	for k, v := range contextFields {
		errorContext[k] = v
	}

	return &PlatformError{
		Type:      errorType,
		Message:   message,
		Err:       err,
		RequestID: getRequestIDFromContext(ctx),
		Layer:     layer,
		Timestamp: time.Now().UTC(),
		Context:   errorContext,
	}
}

// NewRateLimited builds a RATE_LIMITED error carrying the retry-after hint.
func NewRateLimited(ctx context.Context, layer Layer, message string, retryAfter time.Duration) *PlatformError {
	e := NewError(ctx, layer, ErrorTypeRateLimited, message, nil)
	e.RetryAfter = retryAfter
	return e
}

// AsError wraps an error with layer context
func AsError(ctx context.Context, layer Layer, err error, message string) *PlatformError {
	if err == nil {
		return nil
	}

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		wrapped := NewError(ctx, layer, platformErr.Type, fmt.Sprintf("%s: %s", message, platformErr.Message), platformErr)
		wrapped.RetryAfter = platformErr.RetryAfter
		return wrapped
	}

	return NewError(ctx, layer, ErrorTypeInternal, message, err)
}

// ErrorTypeToHTTPStatus maps error types to HTTP status codes
func ErrorTypeToHTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation, ErrorTypeQueryRejected:
		return http.StatusBadRequest
	case ErrorTypeIdempotencyConflict:
		return http.StatusConflict
	case ErrorTypeIdempotencyInProgress:
		return http.StatusConflict
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrorTypeUnsupportedPlatform, ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeNotSupported:
		return http.StatusNotImplemented
	case ErrorTypeAdapterFailure:
		return http.StatusBadGateway
	case ErrorTypeAuditWriteFailed:
		fallthrough
	case ErrorTypeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// IsErrorType checks if an error is a PlatformError with the specified type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Type == errorType
	}

	return false
}

// LogError logs a platform error with proper structure
func LogError(logger zerolog.Logger, err *PlatformError) {
	if err == nil {
		return
	}

	event := logger.Error().
		Str("error_type", string(err.Type)).
		Str("layer", string(err.Layer)).
		Time("timestamp_utc", err.Timestamp)

	if err.RequestID != "" {
		event = event.Str("request_id", err.RequestID)
	}

	for k, v := range err.Context {
		event = event.Interface(k, v)
	}

	if err.Err != nil {
		event = event.Err(err.Err)
	}

	event.Msg(err.Message)
}
