package http

import (
	"fmt"
	"net/http"
)

// AppError is an application error carrying the HTTP status to answer with.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithError wraps an underlying error. It is logged, never serialised.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", message, http.StatusTooManyRequests)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

func ServiceUnavailableError(message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", message, http.StatusServiceUnavailable)
}
