package errors

import (
	stderrors "errors"
	"net/http"
)

const (
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidState       = "invalid_state"
	CodeInvalidRequest     = "invalid_request"
	CodePersistenceFailure = "persistence_failure"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, CodeInternal, message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func InvalidRequest(message string) *APIError {
	return New(http.StatusBadRequest, CodeInvalidRequest, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "forbidden"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

// AlreadyExists reports an identifier collision on create.
func AlreadyExists(code, message string) *APIError {
	return Conflict(code, message, nil)
}

func InvalidState(message string) *APIError {
	return New(http.StatusConflict, CodeInvalidState, message)
}

func PersistenceFailure(message string) *APIError {
	if message == "" {
		message = "failed to persist change"
	}
	return New(http.StatusInternalServerError, CodePersistenceFailure, message)
}

func RateLimited(message string) *APIError {
	if message == "" {
		message = "too many requests"
	}
	return New(http.StatusTooManyRequests, CodeRateLimited, message)
}

// Is reports whether err is an APIError carrying code.
func Is(err error, code string) bool {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) || apiErr == nil {
		return false
	}
	return apiErr.Code == code
}
