package common

import "errors"

// Callers should use errors.Is to match these values.
var (
	// Transport-level errors.
	ErrUnavailable = errors.New("server unavailable")

	// Refresh protocol errors.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrNoAccessInResponse is returned when the refresh endpoint answers
	// without a usable access token.
	ErrNoAccessInResponse = errors.New("no access token in refresh response")

	// ErrSessionExpired is the terminal refresh-failure error. When the
	// transport returns it, all local credentials have already been cleared.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoCredentials is returned by profile lookup when there is neither
	// an access token nor a cached profile to fall back to.
	ErrNoCredentials = errors.New("no access token and no cached user data")
)
