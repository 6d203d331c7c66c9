package weberror

import (
	"fmt"
	"net/http"
)

type (
	// HTTPCoder interface is implemented by application errors.
	HTTPCoder interface {
		// HTTPCode return the HTTP status code for the given error.
		HTTPCode() int
	}

	// Error is the payload rendered in case of error.
	Error struct {
		Code    int    `json:"-"`
		Type    string `json:"type"`
		Message string `json:"message"`
	}
)

// StatusCode the know HTTP status for the given err. If unknown, it returns 500.
func StatusCode(err error) int {
	if hc, ok := err.(HTTPCoder); ok {
		return hc.HTTPCode()
	}
	return http.StatusInternalServerError
}

// New returns a new Error, its type is deduced from the code.
func New(code int, message string) error {
	return &Error{
		Code:    code,
		Type:    typeOf(code),
		Message: message,
	}
}

// Newf returns a new Error with a formatted message.
func Newf(code int, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Error stringifies the error.
func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// HTTPCode returns the HTTP status code.
func (e *Error) HTTPCode() int {
	return e.Code
}

func typeOf(code int) string {
	switch code {
	case http.StatusNotFound:
		return "ResourceNotFoundException"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "AccessDeniedException"
	case http.StatusConflict:
		return "InvalidParameterValueException"
	case http.StatusBadRequest:
		return "InvalidParameterValueException"
	}
	if code >= http.StatusInternalServerError {
		return "ServiceUnavailableException"
	}
	return "BadRequest"
}
