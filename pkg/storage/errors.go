package storage

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
)

// StatusError is implemented by every error this package returns to callers, and by the
// credential errors that pass through it.
type StatusError interface {
	error
	HTTPStatus() int
	Detail() string
}

// NotFoundError reports a missing bucket, object or version.
type NotFoundError struct {
	Code    string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found (%s): %s", e.Code, e.Message)
}
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Detail() string  { return e.Message }

// ForbiddenError reports that the current credentials may not perform the operation.
type ForbiddenError struct {
	Code    string
	Message string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden (%s): %s", e.Code, e.Message)
}
func (e *ForbiddenError) HTTPStatus() int { return http.StatusForbidden }
func (e *ForbiddenError) Detail() string  { return e.Message }

// InternalError covers every other backend or transport failure. Code is empty when the
// failure did not come from the backend.
type InternalError struct {
	Code    string
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}
func (e *InternalError) Unwrap() error   { return e.Err }
func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *InternalError) Detail() string  { return e.Message }

// TranslateError maps a backend failure onto the caller-facing taxonomy. Backend coded
// errors keep their message; anything else is reported with fallback. Errors that already
// carry a status are returned unchanged.
func TranslateError(err error, fallback string) error {
	if err == nil {
		return nil
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &InternalError{Message: fallback, Err: err}
	}

	code, msg := apiErr.ErrorCode(), apiErr.ErrorMessage()
	if msg == "" {
		msg = code
	}
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NotFound":
		return &NotFoundError{Code: code, Message: msg}
	case "AccessDenied", "Forbidden":
		return &ForbiddenError{Code: code, Message: msg}
	default:
		return &InternalError{Code: code, Message: msg, Err: err}
	}
}

// StatusOf returns the status and message to relay for err. Errors outside the taxonomy
// are reported as 500 with their text.
func StatusOf(err error) (int, string) {
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus(), statusErr.Detail()
	}
	return http.StatusInternalServerError, err.Error()
}

// isBackendError reports whether err was produced by the backend rather than by the
// transport or the client itself.
func isBackendError(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr)
}
