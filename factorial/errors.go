package factorial

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication reports a rejected sign-in or an invalid/expired
	// session. The session is invalidated whenever it is returned.
	ErrAuthentication = errors.New("factorial authentication failed")
	// ErrTransport wraps network and timeout failures.
	ErrTransport = errors.New("factorial request failed")
	// ErrNotLoggedIn is returned by data calls made without a session.
	ErrNotLoggedIn = fmt.Errorf("%w: not logged in", ErrAuthentication)
)

// APIError is a non-2xx response or a payload that could not be decoded.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("request %s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTemporary reports whether err is worth retrying as a whole action.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}
