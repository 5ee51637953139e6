package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/authkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

const maxResponseBody = 1 << 20

// AuthTransport is an http.RoundTripper that implements the two halves of
// the auth protocol:
//
// Request phase: the current access token is read from the credential store
// and attached as a bearer credential. A missing token is not an error here,
// some endpoints are public.
//
// Response phase: on a 401, the refresh protocol runs at most once per
// original request. A missing refresh token, a refresh call failure, or a
// refresh response without an access token are terminal: local credentials
// are cleared, the invalidation callback fires best-effort, and the refresh
// failure (not the original 401) is propagated wrapped in
// common.ErrSessionExpired. On refresh success the original request is
// replayed with the new token and that response is returned; the caller
// never observes the intermediate 401. Concurrent 401s share one in-flight
// refresh instead of each starting their own.
type AuthTransport struct {
	base       http.RoundTripper
	store      credentials.Store
	refreshURL string
	logger     logging.Logger

	// storeMu serializes credential mutations with the session layer so a
	// freshly refreshed token cannot be written after a logout's clear.
	storeMu *sync.Mutex
	group   singleflight.Group

	// refreshHTTP bypasses this transport: the refresh call itself must not
	// carry a bearer token or re-enter the refresh protocol.
	refreshHTTP *http.Client

	handlerMu     sync.RWMutex
	onInvalidated func(error)
}

func NewAuthTransport(base http.RoundTripper, store credentials.Store, refreshURL string, storeMu *sync.Mutex, logger logging.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if storeMu == nil {
		storeMu = &sync.Mutex{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthTransport{
		base:        base,
		store:       store,
		refreshURL:  refreshURL,
		storeMu:     storeMu,
		logger:      logger,
		refreshHTTP: &http.Client{Transport: base},
	}
}

// OnSessionInvalidated registers fn to be called after a terminal refresh
// failure has cleared the stored credentials. A panicking subscriber is
// recovered so it cannot mask the refresh error.
func (t *AuthTransport) OnSessionInvalidated(fn func(error)) {
	t.handlerMu.Lock()
	t.onInvalidated = fn
	t.handlerMu.Unlock()
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	first := t.withAuth(req.Clone(ctx), "")
	resp, err := t.base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Drain the 401 so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	_ = resp.Body.Close()

	newAccess, rerr := t.refresh(ctx)
	if rerr != nil {
		t.invalidate(ctx, rerr)
		return nil, fmt.Errorf("%w: %w", common.ErrSessionExpired, rerr)
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		retry.Body = body
	}
	// The retry goes straight to the base transport: a second 401 passes
	// through, guaranteeing at most one refresh cycle per original request.
	return t.base.RoundTrip(t.withAuth(retry, newAccess))
}

// withAuth attaches the bearer credential and a request id to r. With an
// empty token the store is consulted; a failed read degrades to "no token".
func (t *AuthTransport) withAuth(r *http.Request, token string) *http.Request {
	if token == "" {
		stored, err := t.store.Get(r.Context(), common.SlotAccessToken)
		if err != nil {
			t.logger.Warn(r.Context(), "failed to read access token, sending request unauthenticated", "err", err)
		} else {
			token = stored
		}
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	r.Header.Set("X-Request-ID", uuid.NewString())
	return r
}

// refresh exchanges the stored refresh token for a new access token.
// Concurrent callers holding the same refresh token are collapsed into a
// single backend call; every waiter observes its result.
func (t *AuthTransport) refresh(ctx context.Context) (string, error) {
	refreshToken, err := t.store.Get(ctx, common.SlotRefreshToken)
	if err != nil {
		t.logger.Warn(ctx, "failed to read refresh token", "err", err)
		refreshToken = ""
	}
	if refreshToken == "" {
		return "", common.ErrNoRefreshToken
	}

	v, err, _ := t.group.Do(refreshToken, func() (any, error) {
		return t.doRefresh(ctx, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *AuthTransport) doRefresh(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", fmt.Errorf("encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.refreshHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var out struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if out.Access == "" {
		return "", common.ErrNoAccessInResponse
	}

	// The session may have ended while the refresh call was in flight.
	// Re-check under the mutex: if the refresh token just exchanged is no
	// longer the stored one, a logout cleared the credentials and the fresh
	// access token must not be written back into the emptied store.
	t.storeMu.Lock()
	current, cerr := t.store.Get(ctx, common.SlotRefreshToken)
	if cerr == nil && current != refreshToken {
		t.storeMu.Unlock()
		t.logger.Info(ctx, "session cleared during refresh, discarding new access token")
		return "", common.ErrNoRefreshToken
	}
	// An unpersisted token silently breaks session continuity on restart,
	// so a failed write here is surfaced, not logged away.
	err = t.store.Set(ctx, common.SlotAccessToken, out.Access)
	t.storeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("persisting refreshed access token: %w", err)
	}

	t.logger.Debug(ctx, "access token refreshed")
	return out.Access, nil
}

// invalidate runs the terminal failure path: clear all session credentials
// and notify the subscriber. Cleanup problems are logged, never allowed to
// mask the refresh failure.
func (t *AuthTransport) invalidate(ctx context.Context, cause error) {
	t.storeMu.Lock()
	if err := t.store.Remove(ctx, common.AuthSlots...); err != nil {
		t.logger.Error(ctx, "failed to clear credentials after refresh failure", "err", err)
	}
	t.storeMu.Unlock()

	t.handlerMu.RLock()
	fn := t.onInvalidated
	t.handlerMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error(ctx, "session-invalidated handler panicked", "panic", p)
		}
	}()
	fn(cause)
}
