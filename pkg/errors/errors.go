package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeIllegalTransition      Code = "ILLEGAL_TRANSITION"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeOTPRequired            Code = "OTP_REQUIRED"
	CodeInvalidOTP             Code = "INVALID_OTP"
	CodeIdempotency            Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit              Code = "RATE_LIMITED"
	CodeStorageUnavailable     Code = "STORAGE_UNAVAILABLE"
	CodeInternal               Code = "INTERNAL_ERROR"
	CodeDependency             Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP. Details are echoed to clients
// only when DetailsAllowed is set.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable = true
	final     = false
	details   = true
	opaque    = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:             {http.StatusBadRequest, final, "validation failed", details},
	CodeUnauthorized:           {http.StatusUnauthorized, final, "authentication required", opaque},
	CodePermissionDenied:       {http.StatusForbidden, final, "permission denied", details},
	CodeNotFound:               {http.StatusNotFound, final, "resource not found", opaque},
	CodeIllegalTransition:      {http.StatusConflict, final, "illegal state transition", details},
	CodeConcurrentModification: {http.StatusConflict, final, "resource was modified concurrently", opaque},
	CodeOTPRequired:            {http.StatusBadRequest, final, "delivery otp required", opaque},
	CodeInvalidOTP:             {http.StatusBadRequest, final, "delivery otp does not match", opaque},
	CodeIdempotency:            {http.StatusConflict, final, "idempotency key reused", details},
	CodeRateLimit:              {http.StatusTooManyRequests, retryable, "too many attempts", opaque},
	CodeStorageUnavailable:     {http.StatusServiceUnavailable, retryable, "storage unavailable", opaque},
	CodeInternal:               {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:             {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},
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

// Error includes the cause so logs keep the full chain; clients only ever
// see the public message.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
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

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	if typed := As(err); typed != nil {
		return typed.Code() == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
