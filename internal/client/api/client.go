// Package api is the adapter to the identity backend: a transport that
// attaches the current access token to outgoing requests and runs the
// token-refresh protocol on authorization failures, plus typed wrappers for
// every auth endpoint.
package api

import (
	"context"
	"encoding/json"
)

// Client is the backend contract consumed by the session manager.
//
// Operations that do not return a dedicated type hand back the raw response
// payload so callers can surface backend messages unmodified. All methods
// honor context cancellation.
type Client interface {
	Register(ctx context.Context, email, username, password, confirmPassword string) (json.RawMessage, error)
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	ForgotPassword(ctx context.Context, email string) (json.RawMessage, error)
	VerifyEmail(ctx context.Context, email, code string) (json.RawMessage, error)
	ResendOTP(ctx context.Context, email string) (json.RawMessage, error)
	VerifyForgotPassword(ctx context.Context, email, code string) (*ResetTokenResponse, error)
	ChangePassword(ctx context.Context, newPassword, confirmNewPassword, resetToken string) (json.RawMessage, error)
	Whoami(ctx context.Context) (*WhoamiResponse, error)
	Logout(ctx context.Context) (json.RawMessage, error)

	// OnSessionInvalidated registers the callback invoked after a terminal
	// refresh failure has cleared the local credentials.
	OnSessionInvalidated(fn func(cause error))

	Close() error
}
