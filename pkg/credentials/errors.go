package credentials

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyToken         = errors.New("identity token is empty")
	ErrMissingCredentials = errors.New("STS response is missing credentials")
	ErrNoCACerts          = errors.New("no certificates found in CA bundle")
)

// AuthError reports a failed token exchange. StatusCode and Body are set when the
// exchange endpoint answered with a non-success status.
type AuthError struct {
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "token exchange failed"
	}
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
		if e.Body != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Body)
		}
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPStatus is the status relayed to callers at a service boundary.
func (e *AuthError) HTTPStatus() int { return http.StatusInternalServerError }

func (e *AuthError) Detail() string { return "Failed to initialise storage client" }

// RefreshError is returned to the single caller whose refresh attempt failed. The
// credentials that were active before the attempt remain in use.
type RefreshError struct {
	Err error
}

const refreshErrorMessage = "Failed to refresh storage credentials"

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return refreshErrorMessage
	}
	return fmt.Sprintf("%s: %v", refreshErrorMessage, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) HTTPStatus() int { return http.StatusInternalServerError }

// Detail is the caller-facing message; the wrapped cause is only logged.
func (e *RefreshError) Detail() string { return refreshErrorMessage }
