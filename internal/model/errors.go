package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotInitialized = errors.New("cart not initialized")
)

// APIError is a structured failure of a remote call or of a shopper API request.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// === Workflow errors ===

// Kind classifies a cart workflow failure by how the shopper should be told about it.
type Kind string

const (
	// KindCartInit: no cart could be created; every cart operation waits for a retry.
	KindCartInit Kind = "cart_init"
	// KindMigration: one queued item failed to migrate. Other items are unaffected.
	KindMigration Kind = "migration"
	// KindRefetch: the authoritative cart could not be read; the pending queue is kept.
	KindRefetch Kind = "refetch"
	// KindSync: an optimistic edit was not confirmed by the cart service.
	KindSync Kind = "sync"
	// KindOptimize: no optimization result; the previous one is kept.
	KindOptimize Kind = "optimize"
)

// WorkflowError is a failure caught at the boundary of the component that
// issued the remote call.
type WorkflowError struct {
	Kind      Kind
	Op        string
	ProductID ProductID // zero when the failure is not about one product
	Err       error
}

func (e *WorkflowError) Error() string {
	if e.ProductID != 0 {
		return fmt.Sprintf("%s: %s (product %s): %v", e.Kind, e.Op, e.ProductID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Warning reports whether the failure left the shopper's view usable as is.
func (e *WorkflowError) Warning() bool {
	return e.Kind == KindSync || e.Kind == KindMigration
}

// UserMessage is the text shown to the shopper.
func (e *WorkflowError) UserMessage() string {
	switch e.Kind {
	case KindCartInit:
		return "Не удалось создать корзину. Повторите попытку."
	case KindMigration:
		return fmt.Sprintf("Товар %s не удалось перенести в корзину.", e.ProductID)
	case KindRefetch:
		return "Ошибка загрузки корзины. Обновите, чтобы повторить."
	case KindSync:
		return "Изменение корзины ещё не сохранено и будет исправлено при следующем обновлении."
	case KindOptimize:
		return "Не удалось рассчитать выгодный магазин. Показан предыдущий результат."
	default:
		return "Что-то пошло не так."
	}
}
