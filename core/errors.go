package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput           = "SCORING_BAD_INPUT"
	ErrorUnauthorized       = "SCORING_UNAUTHORIZED"
	ErrorForbidden          = "SCORING_FORBIDDEN"
	ErrorSessionNotFound    = "SCORING_SESSION_NOT_FOUND"
	ErrorJobNotFound        = "SCORING_JOB_NOT_FOUND"
	ErrorInvalidTransition  = "SCORING_INVALID_TRANSITION"
	ErrorConflict           = "SCORING_CONFLICT"
	ErrorEngineFailed       = "SCORING_ENGINE_FAILED"
	ErrorPersistenceFailed  = "SCORING_PERSISTENCE_FAILED"
	ErrorExternalFailure    = "SCORING_EXTERNAL_FAILURE"
	ErrorInternal           = "SCORING_INTERNAL_ERROR"
	defaultInternalErrorMsg = "An unexpected error occurred"
)

var (
	ErrSessionNotFound   = errors.New("core: session not found")
	ErrJobNotFound       = errors.New("core: scoring job not found")
	ErrScoreNotFound     = errors.New("core: score not found")
	ErrInvalidTransition = errors.New("core: invalid session status transition")
)

// EngineError marks a failure raised by the scoring engine call, including
// its timeout.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	if e == nil || e.Err == nil {
		return "core: scoring engine failed"
	}
	return "core: scoring engine failed: " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PersistenceError marks a failure writing scoring results.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return "core: persistence failed"
	}
	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "persist"
	}
	if e.Err == nil {
		return fmt.Sprintf("core: %s failed", op)
	}
	return fmt.Sprintf("core: %s failed: %v", op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClassifyFailure defaults to the engine kind: anything that is not an
// explicit persistence failure came out of the scoring call.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureKindNone
	}
	var persistenceErr *PersistenceError
	if errors.As(err, &persistenceErr) {
		return FailureKindPersistence
	}
	return FailureKindEngine
}

// engineFailure wraps err as an engine failure, naming a deadline hit
// explicitly so the stored status_error reads as a timeout.
func engineFailure(err error, timeout string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &EngineError{Err: fmt.Errorf("scoring timed out after %s: %w", timeout, err)}
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	return &EngineError{Err: err}
}

func NewConflictError(message string, metadata map[string]any) error {
	return newScoringError(message, goerrors.CategoryConflict, ErrorConflict, metadata)
}

func NewValidationError(field string, message string) error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func WrapNotFound(err error, textCode string, message string, metadata map[string]any) *goerrors.Error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryNotFound, message).
		WithCode(http.StatusNotFound).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		wrapped.WithMetadata(metadata)
	}
	return wrapped
}

// IsSessionNotFound reports a missing session for both raw store errors and
// mapped envelopes.
func IsSessionNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionNotFound) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == ErrorSessionNotFound
}

func newScoringError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(scoringHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MapError converts any error into the scoring error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return WrapNotFound(err, ErrorSessionNotFound, err.Error(), nil)
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrScoreNotFound):
		return WrapNotFound(err, ErrorJobNotFound, err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).WithTextCode(ErrorInvalidTransition))
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryOperation, err.Error()).WithTextCode(ErrorEngineFailed))
	}
	var persistenceErr *PersistenceError
	if errors.As(err, &persistenceErr) {
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryOperation, err.Error()).WithTextCode(ErrorPersistenceFailed))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = scoringHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = defaultInternalErrorMsg
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorSessionNotFound
	case goerrors.CategoryAuth:
		return ErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ErrorForbidden
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorExternalFailure
	default:
		return ErrorInternal
	}
}

func scoringHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
