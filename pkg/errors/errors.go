package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies bot errors by how they must be handled.
type ErrorCode string

const (
	// ErrCodeConfig marks a broken plugin or config contract. Startup aborts.
	ErrCodeConfig ErrorCode = "CONFIG_FAULT"
	// ErrCodeContract marks a programming error such as a permission check without a user.
	ErrCodeContract         ErrorCode = "CONTRACT_VIOLATION"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeThrottled        ErrorCode = "THROTTLED"
	ErrCodeHandler          ErrorCode = "HANDLER_FAILED"
	ErrCodeTransport        ErrorCode = "TRANSPORT_FAULT"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit        ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnavailable      ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError carries a code, a message and optional context for logging.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair that log sites attach to the entry.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code onto a dashboard response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeThrottled, ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable, ErrCodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

func NewConfigError(format string, args ...interface{}) *AppError {
	return Newf(ErrCodeConfig, format, args...)
}

func NewInvalidInputError(message string) *AppError {
	return New(ErrCodeInvalidInput, message)
}

func NewNotFoundError(resource string) *AppError {
	return Newf(ErrCodeNotFound, "%s not found", resource)
}

// GetAppError extracts the outermost AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsCode reports whether any AppError in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsConfigFault reports whether err must abort startup.
func IsConfigFault(err error) bool {
	return IsCode(err, ErrCodeConfig)
}

// UserError is a handler failure whose message is safe to show in chat.
type UserError struct {
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// Userf builds a UserError with a formatted chat-safe message.
func Userf(format string, args ...interface{}) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// AsUserError returns the chat-safe message of the first UserError in the chain.
func AsUserError(err error) (string, bool) {
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue.Message, true
	}
	return "", false
}
