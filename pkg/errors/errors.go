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
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Settlement codes surface the specific reason a checkout or redemption failed.
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeStockConflict           Code = "STOCK_CONFLICT"
	CodeInsufficientPoints      Code = "INSUFFICIENT_POINTS"
	CodeInsufficientGiftBalance Code = "INSUFFICIENT_GIFT_CARD_BALANCE"
	CodeGiftCardInvalid         Code = "GIFT_CARD_INVALID"
	CodeGiftCardInactive        Code = "GIFT_CARD_INACTIVE"
	CodeGiftCardExpired         Code = "GIFT_CARD_EXPIRED"
	CodeGiftCardUnauthorized    Code = "GIFT_CARD_UNAUTHORIZED"
	CodeTransactionFailed       Code = "TRANSACTION_FAILED"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      flags&retryable != 0,
		PublicMessage:  public,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),

	// Stock is only short for this request; a stock conflict means another
	// checkout won the row and a retry may succeed.
	CodeInsufficientStock:       meta(http.StatusConflict, "insufficient stock", withDetails),
	CodeStockConflict:           meta(http.StatusConflict, "stock changed during checkout", retryable|withDetails),
	CodeInsufficientPoints:      meta(http.StatusUnprocessableEntity, "insufficient loyalty points", withDetails),
	CodeInsufficientGiftBalance: meta(http.StatusUnprocessableEntity, "insufficient gift card balance", withDetails),
	CodeGiftCardInvalid:         meta(http.StatusNotFound, "gift card not found", 0),
	CodeGiftCardInactive:        meta(http.StatusUnprocessableEntity, "gift card is not active", withDetails),
	CodeGiftCardExpired:         meta(http.StatusUnprocessableEntity, "gift card has expired", withDetails),
	CodeGiftCardUnauthorized:    meta(http.StatusForbidden, "gift card belongs to another user", 0),
	CodeTransactionFailed:       meta(http.StatusInternalServerError, "transaction failed", retryable),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

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

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether the caller may safely repeat the operation.
// Untyped errors are treated as internal and therefore retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return true
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
