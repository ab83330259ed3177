package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// Category classifies an engine error for handling and logging.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryRateLimit      Category = "rate_limit"
	CategoryUnauthorized   Category = "unauthorized_oracle"
	CategoryInvalidState   Category = "invalid_state"
	CategoryPersistence    Category = "persistence"
	CategoryExternalLedger Category = "external_ledger"
	CategoryInternal       Category = "internal"
)

// AppError wraps an errbuilder error with the engine's taxonomy and the
// HTTP status an API layer should map it to.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   Category  `json:"category"`
	HTTPStatus int       `json:"http_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	codeStr := "INTERNAL_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		codeStr = "VALIDATION_ERROR"
	case errbuilder.CodeResourceExhausted:
		codeStr = "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodePermissionDenied:
		codeStr = "UNAUTHORIZED_ORACLE"
	case errbuilder.CodeFailedPrecondition:
		codeStr = "INVALID_STATE"
	case errbuilder.CodeUnavailable:
		codeStr = "PERSISTENCE_ERROR"
	case errbuilder.CodeAborted:
		codeStr = "EXTERNAL_LEDGER_ERROR"
	}
	return fmt.Sprintf("[%s] %s", codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func newAppError(builder *errbuilder.ErrBuilder, category Category, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError marks malformed input: bad address, out-of-range score,
// missing context field, mismatched array lengths.
func NewValidationError(message string, details ...any) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return newAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewRateLimitError is returned when a user exceeds the daily event budget.
func NewRateLimitError(limit int, window time.Duration) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("limit", fmt.Errorf("%d events per %s", limit, window))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Reputation update rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return newAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewUnauthorizedOracleError marks a caller that is not a registered, active oracle.
func NewUnauthorizedOracleError(address string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("oracle_address", errors.New(address))

	builder := errbuilder.New().
		WithCode(errbuilder.CodePermissionDenied).
		WithMsg("Oracle not registered or inactive").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return newAppError(builder, CategoryUnauthorized, http.StatusForbidden)
}

// NewInvalidStateError marks a state-machine transition guard failure,
// e.g. challenging an evaluation that is not completed.
func NewInvalidStateError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	return newAppError(builder, CategoryInvalidState, http.StatusConflict)
}

// NewPersistenceError is surfaced only when both primary and fallback
// stores are unavailable.
func NewPersistenceError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return newAppError(builder, CategoryPersistence, http.StatusServiceUnavailable)
}

// NewExternalLedgerError records a failed chain call. Callers log it and mark
// the affected record unverified; the in-process operation still succeeds.
func NewExternalLedgerError(operation string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("operation", errors.New(operation))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeAborted).
		WithMsg(fmt.Sprintf("External ledger call %s failed", operation)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return newAppError(builder, CategoryExternalLedger, http.StatusBadGateway)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return newAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// Is* helpers let callers branch on taxonomy without string matching.

func IsValidation(err error) bool     { return hasCategory(err, CategoryValidation) }
func IsRateLimit(err error) bool      { return hasCategory(err, CategoryRateLimit) }
func IsUnauthorized(err error) bool   { return hasCategory(err, CategoryUnauthorized) }
func IsInvalidState(err error) bool   { return hasCategory(err, CategoryInvalidState) }
func IsPersistence(err error) bool    { return hasCategory(err, CategoryPersistence) }
func IsExternalLedger(err error) bool { return hasCategory(err, CategoryExternalLedger) }

func hasCategory(err error, category Category) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

// ToAppError converts any error to an AppError.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return newAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		builder := errbuilder.New().
			WithCode(errbuilder.CodeDeadlineExceeded).
			WithMsg("Request deadline exceeded").
			WithCause(err)
		return newAppError(builder, CategoryInternal, http.StatusGatewayTimeout)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler is a Gin middleware that maps engine errors to structured
// JSON responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			appErr := ToAppError(err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err any) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// LogError logs an error with level chosen by category. Caller mistakes log
// at Warn, infrastructure failures at Error.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
	)

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryUnauthorized, CategoryInvalidState:
		logEntry.Warn(err.ErrBuilder.Msg)
	case CategoryExternalLedger:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Info(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Info(err.ErrBuilder.Msg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	}
}
