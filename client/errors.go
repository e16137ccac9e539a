package client

import (
	"errors"
	"fmt"
)

// Operation names used in AuthError and metrics
const (
	OpSignup        = "signup"
	OpSignin        = "signin"
	OpFetchIdentity = "fetch_identity"
	OpSignout       = "signout"
)

// Generic messages used when the server does not supply one
const (
	MsgSignupFailed        = "signup failed"
	MsgSigninFailed        = "signin failed"
	MsgFetchIdentityFailed = "failed to fetch user info"
)

// AuthError is returned when the remote service answers with a non-2xx status.
// Message is what a form should display inline.
type AuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// String includes the operation and status for logs
func (e *AuthError) String() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsAuthError reports whether err is (or wraps) an *AuthError, returning it.
func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// ErrorMessage formats any error returned by AuthClient for display. Request
// failures show the server supplied message; transport failures fall back to
// their own text.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if authErr, ok := IsAuthError(err); ok {
		return authErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
