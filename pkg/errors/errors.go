package errors

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAlreadyProcessed      Code = "ALREADY_PROCESSED"
	CodeStateConflict         Code = "STATE_CONFLICT"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeCreditLimitExceeded   Code = "CREDIT_LIMIT_EXCEEDED"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeDependency            Code = "DEPENDENCY_ERROR"
)

// Category groups codes by how a caller is expected to react.
type Category string

const (
	CategoryValidation           Category = "validation"
	CategoryPrecondition         Category = "precondition"
	CategoryInsufficientResource Category = "insufficient_resource"
	CategoryInfra                Category = "infra"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Category       Category
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
		Category:       CategoryValidation,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
		Category:       CategoryPrecondition,
	},
	CodeAlreadyProcessed: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "already processed",
		DetailsAllowed: true,
		Category:       CategoryPrecondition,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
		Category:       CategoryPrecondition,
	},
	CodeInsufficientFunds: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "insufficient balance",
		DetailsAllowed: true,
		Category:       CategoryInsufficientResource,
	},
	CodeInsufficientLiquidity: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "insufficient system liquidity",
		DetailsAllowed: true,
		Category:       CategoryInsufficientResource,
	},
	CodeCreditLimitExceeded: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "credit limit exceeded",
		DetailsAllowed: true,
		Category:       CategoryInsufficientResource,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
		Category:       CategoryInfra,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		Category:       CategoryInfra,
	},
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
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
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

// Category reports the taxonomy bucket for the error code.
func (e *Error) Category() Category {
	return MetadataFor(e.Code()).Category
}

// Retryable reports whether the caller may repeat the operation verbatim.
func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
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

// MarshalJSON renders the public shape of the error. The cause is never included.
func (e *Error) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details,omitempty"`
	}{Code: e.code, Message: e.message, Details: e.details})
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
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Public strips the cause chain so store-specific details never leave the ledger.
func Public(err *Error) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: err.code, message: err.message, details: err.details}
}
