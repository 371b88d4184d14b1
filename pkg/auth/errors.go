package auth

import "github.com/pkg/errors"

var (
	// ErrMissingToken is returned when the request carries no usable bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidAudience is returned when the token's aud claim does not match.
	ErrInvalidAudience = errors.New("invalid audience")
	// ErrUnknownKey is returned when no signing key matches the token's kid.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrWeakKey is returned when the published key has a degenerate RSA exponent.
	ErrWeakKey = errors.New("weak signing key")
	// ErrRejected is returned when the identity provider refuses the token.
	ErrRejected = errors.New("token rejected by identity provider")
)

// Error is an authentication failure carrying the client-facing detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func notAuthenticated() *Error {
	return &Error{Detail: "Not authenticated", Err: ErrMissingToken}
}

func invalidCredentials(err error) *Error {
	return &Error{Detail: "Invalid authentication credentials: " + err.Error(), Err: err}
}
