// Package errors defines the coded errors shared by the engine and the API.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeUnknownMenuItem    Code = "UNKNOWN_MENU_ITEM"
	CodeUnknownIngredient  Code = "UNKNOWN_INGREDIENT"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeStockConflict      Code = "CONCURRENT_STOCK_CONFLICT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Metadata is how a code surfaces over HTTP. Retryable codes mean the same
// request may succeed later; DetailsAllowed codes expose Details to callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable bool, message string, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: message, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	// request and auth
	CodeValidation:   meta(http.StatusBadRequest, false, "validation failed", true),
	CodeUnauthorized: meta(http.StatusUnauthorized, false, "authentication required", false),
	CodeForbidden:    meta(http.StatusForbidden, false, "access denied", false),
	CodeNotFound:     meta(http.StatusNotFound, false, "resource not found", false),
	CodeIdempotency:  meta(http.StatusConflict, false, "idempotency key reused", true),

	// state
	CodeConflict:      meta(http.StatusConflict, false, "conflict detected", false),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, false, "state transition disallowed", true),

	// consumption engine
	CodeUnknownMenuItem:   meta(http.StatusUnprocessableEntity, false, "order references unknown menu items", true),
	CodeUnknownIngredient: meta(http.StatusUnprocessableEntity, false, "menu item references unknown ingredients", true),
	CodeInsufficientStock: meta(http.StatusConflict, false, "insufficient stock", true),
	CodeStockConflict:     meta(http.StatusConflict, true, "stock changed concurrently, retry the order", true),

	// infrastructure
	CodeStorageUnavailable: meta(http.StatusServiceUnavailable, true, "storage unavailable", false),
	CodeDependency:         meta(http.StatusServiceUnavailable, true, "dependency unavailable", true),
	CodeInternal:           meta(http.StatusInternalServerError, true, "internal server error", false),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure. The cause is kept for logs and errors.Is but
// never rendered to callers.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether the caller may resubmit the same request.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(CodeOf(err)).Retryable
}
