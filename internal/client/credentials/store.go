// Package credentials implements the persistent credential store: a durable
// key/value mapping holding the access token, refresh token, cached user
// profile, and the ephemeral password-reset token.
//
// The store is pure storage with no business logic. Operations are atomic
// per key; no cross-key transaction guarantee is made. A missing key is not
// an error: Get returns ("", nil).
package credentials

import "context"

// Store is the contract shared by all backends.
//
// Reads that fail at the I/O layer return an error; callers on non-critical
// paths may degrade such failures to "value absent". Write errors must be
// propagated when losing the value would break session continuity.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}
