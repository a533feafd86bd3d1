package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeInternal      ErrorType = "INTERNAL"
	ErrorTypeReadFailure   ErrorType = "READ_FAILURE"
	ErrorTypeMissingRecord ErrorType = "MISSING_RECORD"
	ErrorTypeSerialization ErrorType = "SERIALIZATION_FAILURE"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     err,
	}
}

// ReadFailure marks a file that could not be read (binary, permission
// denied, vanished). The file is skipped, never fatal.
func ReadFailure(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeReadFailure,
		Message: "reading " + path,
		Code:    http.StatusUnprocessableEntity,
		Details: path,
		Err:     err,
	}
}

// MissingRecord marks an operation on a path the store does not know.
func MissingRecord(path string) *Error {
	return &Error{
		Type:    ErrorTypeMissingRecord,
		Message: "no record for " + path,
		Code:    http.StatusNotFound,
		Details: path,
	}
}

// SerializationFailure marks a display payload that could not be built or parsed.
func SerializationFailure(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeSerialization,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     err,
	}
}

// Is reports whether err carries an *Error of the given type.
func Is(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// StatusCode returns the HTTP status to report for err.
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}
