// Package session implements the session manager: the owner of in-memory
// authentication state. It orchestrates every call to the identity backend,
// keeps the persistent credential store in sync, and exposes the full set of
// authentication operations (login, logout, registration, email
// verification, password reset) to the rest of the application.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/authkeeper/internal/client/api"
	"github.com/dmitrijs2005/authkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// expiryLeeway makes a token look expired slightly before its exp claim, so
// clock skew cannot present a locally "valid" token the server rejects.
const expiryLeeway = 30 * time.Second

// Options configures a Manager.
type Options struct {
	// StoreMu serializes credential mutations with the transport. Pass the
	// same mutex given to api.Config. A private mutex is used when nil.
	StoreMu *sync.Mutex
	// VerifyTokenOnStart makes Bootstrap check the stored access token's exp
	// claim instead of restoring it optimistically. Off by default: a stale
	// token is corrected lazily by the refresh protocol on first use.
	VerifyTokenOnStart bool
	Logger             logging.Logger
	// Now is a clock seam for tests; time.Now when nil.
	Now func() time.Time
}

// Manager owns the session state machine. Operations never partially apply:
// either the full success side effects (state + storage) occur, or none do.
// The one exception is Logout, which always applies its local cleanup.
type Manager struct {
	client  api.Client
	store   credentials.Store
	storeMu *sync.Mutex
	logger  logging.Logger
	now     func() time.Time

	verifyOnStart bool

	stateMu      sync.RWMutex
	state        State
	token        string
	onInvalidate func(error)
}

func NewManager(client api.Client, store credentials.Store, opts Options) *Manager {
	storeMu := opts.StoreMu
	if storeMu == nil {
		storeMu = &sync.Mutex{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		client:        client,
		store:         store,
		storeMu:       storeMu,
		logger:        logger,
		now:           now,
		verifyOnStart: opts.VerifyTokenOnStart,
		state:         StateUninitialized,
	}
	client.OnSessionInvalidated(m.handleInvalidated)
	return m
}

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return Session{Token: m.token, State: m.state}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Loading reports whether Bootstrap has not completed yet. Callers should
// not make authenticated routing decisions while it is true.
func (m *Manager) Loading() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state == StateUninitialized || m.state == StateLoading
}

// OnInvalidate registers the callback fired when the session is invalidated
// by a terminal refresh failure. The navigation layer subscribes here to
// send the user back to the login entry point.
func (m *Manager) OnInvalidate(fn func(cause error)) {
	m.stateMu.Lock()
	m.onInvalidate = fn
	m.stateMu.Unlock()
}

func (m *Manager) setState(state State, token string) {
	m.stateMu.Lock()
	m.state = state
	m.token = token
	m.stateMu.Unlock()
}

// Bootstrap restores the session from the credential store at startup. A
// stored access token is restored optimistically: validity is not checked
// against the server, a stale token is corrected by the refresh protocol on
// the first failed request. With VerifyTokenOnStart the token's exp claim is
// inspected locally and an expired token triggers one refresh attempt (via
// an authenticated probe) before giving up on the session.
//
// Bootstrap must complete before authenticated routing decisions are made;
// Loading reports true until it does. The only returned error is a failed
// credential-store read; the session is settled (anonymous) even then.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.setState(StateLoading, "")

	token, err := m.store.Get(ctx, common.SlotAccessToken)
	if err != nil {
		// An unreadable credential store is the one startup failure worth
		// stopping for; the state still settles so Loading() turns false.
		m.setState(StateAnonymous, "")
		return fmt.Errorf("reading stored access token: %w", err)
	}
	if token == "" {
		m.setState(StateAnonymous, "")
		return nil
	}

	if m.verifyOnStart && tokenExpired(token, m.now()) {
		m.logger.Info(ctx, "stored access token is expired, attempting refresh")
		if _, err := m.client.Whoami(ctx); err != nil {
			if errors.Is(err, common.ErrSessionExpired) {
				// handleInvalidated has already moved us to anonymous.
				return nil
			}
			// Backend unreachable: fall back to the optimistic restore and
			// let the refresh protocol settle it once the network is back.
			m.logger.Warn(ctx, "token verification probe failed, restoring session optimistically", "err", err)
		} else if refreshed, err := m.store.Get(ctx, common.SlotAccessToken); err == nil && refreshed != "" {
			token = refreshed
		}
	}

	m.setState(StateAuthenticated, token)
	return nil
}

// Login authenticates with the backend and, on success, persists the token
// pair and the user profile before flipping the session to authenticated,
// so a concurrently issued request can never observe an authenticated state
// with a missing token. On failure the session and store are untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	res, err := m.client.Login(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, err
	}

	m.storeMu.Lock()
	err = m.persistLogin(ctx, res)
	m.storeMu.Unlock()
	if err != nil {
		return nil, err
	}

	m.setState(StateAuthenticated, res.Tokens.Access)
	return res, nil
}

// persistLogin writes the token pair and profile cache. Token writes are
// safety-critical and abort the login; the profile is a best-effort cache.
func (m *Manager) persistLogin(ctx context.Context, res *api.LoginResponse) error {
	if err := m.store.Set(ctx, common.SlotAccessToken, res.Tokens.Access); err != nil {
		return fmt.Errorf("persisting access token: %w", err)
	}
	if err := m.store.Set(ctx, common.SlotRefreshToken, res.Tokens.Refresh); err != nil {
		return fmt.Errorf("persisting refresh token: %w", err)
	}
	if len(res.User) > 0 {
		if err := m.store.Set(ctx, common.SlotUser, string(res.User)); err != nil {
			m.logger.Warn(ctx, "failed to cache user profile", "err", err)
		}
	}
	return nil
}

// Register creates an account. Registration does not imply login: the
// account still needs email verification, and the session is not touched.
func (m *Manager) Register(ctx context.Context, email, username, password, confirmPassword string) (json.RawMessage, error) {
	return m.client.Register(ctx,
		normalizeEmail(email),
		strings.TrimSpace(username),
		strings.TrimSpace(password),
		strings.TrimSpace(confirmPassword),
	)
}

// ForgotPassword starts the password-reset flow. Stateless.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (json.RawMessage, error) {
	return m.client.ForgotPassword(ctx, normalizeEmail(email))
}

// ResendOTP requests a new verification code. Stateless.
func (m *Manager) ResendOTP(ctx context.Context, email string) (json.RawMessage, error) {
	return m.client.ResendOTP(ctx, normalizeEmail(email))
}

// VerifyEmail submits the 6-digit code making the account usable for login.
// No session state changes here.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) (json.RawMessage, error) {
	return m.client.VerifyEmail(ctx, normalizeEmail(email), strings.TrimSpace(code))
}

// VerifyForgotPassword submits the reset-flow code. The one-time reset token
// in the response is persisted to the credential store before returning, so
// the change-password step can read it. The reset token authorizes only that
// step; it is never attached as a bearer credential.
func (m *Manager) VerifyForgotPassword(ctx context.Context, email, code string) (*api.ResetTokenResponse, error) {
	res, err := m.client.VerifyForgotPassword(ctx, normalizeEmail(email), strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}

	if res.ResetToken != "" {
		m.storeMu.Lock()
		err = m.store.Set(ctx, common.SlotResetToken, res.ResetToken)
		m.storeMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("persisting reset token: %w", err)
		}
	}
	return res, nil
}

// StoredResetToken reads the reset token persisted by VerifyForgotPassword.
func (m *Manager) StoredResetToken(ctx context.Context) (string, error) {
	return m.store.Get(ctx, common.SlotResetToken)
}

// ChangePassword completes the reset flow. The reset token is consumed
// server-side; on success its stored copy is removed. Session state is not
// mutated, the user logs in afresh afterward.
func (m *Manager) ChangePassword(ctx context.Context, newPassword, confirmNewPassword, resetToken string) (json.RawMessage, error) {
	res, err := m.client.ChangePassword(ctx,
		strings.TrimSpace(newPassword),
		strings.TrimSpace(confirmNewPassword),
		strings.TrimSpace(resetToken),
	)
	if err != nil {
		return nil, err
	}

	m.storeMu.Lock()
	if err := m.store.Remove(ctx, common.SlotResetToken); err != nil {
		m.logger.Warn(ctx, "failed to remove used reset token", "err", err)
	}
	m.storeMu.Unlock()

	return res, nil
}

// Profile returns the current user's profile.
//
// Without an access token it falls back immediately to the cached profile,
// and raises common.ErrNoCredentials when there is none. With a token it
// calls the who-am-I endpoint; servers may rotate tokens on any
// authenticated call, so a token block in the response is persisted and the
// session updated before the profile is returned. On failure the cached
// profile, if any, is returned instead of the error.
func (m *Manager) Profile(ctx context.Context) (*api.Profile, error) {
	token, err := m.store.Get(ctx, common.SlotAccessToken)
	if err != nil {
		m.logger.Warn(ctx, "failed to read access token", "err", err)
		token = ""
	}
	if token == "" {
		if cached := m.cachedProfile(ctx); cached != nil {
			return cached, nil
		}
		return nil, common.ErrNoCredentials
	}

	res, err := m.client.Whoami(ctx)
	if err != nil {
		if cached := m.cachedProfile(ctx); cached != nil {
			m.logger.Warn(ctx, "whoami failed, returning cached profile", "err", err)
			return cached, nil
		}
		return nil, err
	}

	if rot := res.Rotation(); rot != nil {
		m.applyRotation(ctx, rot)
	}

	raw := res.ProfileJSON()
	profile, err := decodeProfile(raw)
	if err != nil {
		if cached := m.cachedProfile(ctx); cached != nil {
			m.logger.Warn(ctx, "failed to decode profile, returning cached profile", "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("decoding profile: %w", err)
	}

	m.storeMu.Lock()
	if err := m.store.Set(ctx, common.SlotUser, string(raw)); err != nil {
		m.logger.Warn(ctx, "failed to cache user profile", "err", err)
	}
	m.storeMu.Unlock()

	return profile, nil
}

// applyRotation persists opportunistically rotated tokens and updates the
// in-memory state before the profile is handed back.
func (m *Manager) applyRotation(ctx context.Context, rot *api.TokenRotation) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	newAccess := rot.NewAccess()
	if newAccess != "" {
		if err := m.store.Set(ctx, common.SlotAccessToken, newAccess); err != nil {
			m.logger.Error(ctx, "failed to persist rotated access token", "err", err)
			return
		}
		m.setState(StateAuthenticated, newAccess)
	}
	if rot.Refresh != "" {
		if err := m.store.Set(ctx, common.SlotRefreshToken, rot.Refresh); err != nil {
			m.logger.Error(ctx, "failed to persist rotated refresh token", "err", err)
		}
	}
}

func (m *Manager) cachedProfile(ctx context.Context) *api.Profile {
	raw, err := m.store.Get(ctx, common.SlotUser)
	if err != nil {
		m.logger.Warn(ctx, "failed to read cached profile", "err", err)
		return nil
	}
	if raw == "" {
		return nil
	}
	profile, err := decodeProfile([]byte(raw))
	if err != nil {
		m.logger.Warn(ctx, "cached profile is corrupted", "err", err)
		return nil
	}
	return profile
}

// Logout ends the session. It is idempotent and always succeeds locally:
// without an access token the network call is skipped, and when the call
// fails the error is logged, never surfaced, since the caller must always
// be able to clear local session state. The token slots and profile cache
// are cleared regardless of the network outcome.
func (m *Manager) Logout(ctx context.Context) error {
	token, err := m.store.Get(ctx, common.SlotAccessToken)
	if err != nil {
		m.logger.Warn(ctx, "failed to read access token during logout", "err", err)
		token = ""
	}

	if token != "" {
		if _, err := m.client.Logout(ctx); err != nil {
			m.logger.Warn(ctx, "logout request failed, clearing local session anyway", "err", err)
		}
	} else {
		m.logger.Info(ctx, "no access token found during logout, clearing local session only")
	}

	m.storeMu.Lock()
	if err := m.store.Remove(ctx, common.AuthSlots...); err != nil {
		m.logger.Error(ctx, "failed to clear stored credentials", "err", err)
	}
	m.storeMu.Unlock()

	m.setState(StateAnonymous, "")
	return nil
}

// handleInvalidated is wired into the transport: by the time it runs, the
// stored credentials are already cleared.
func (m *Manager) handleInvalidated(cause error) {
	m.setState(StateAnonymous, "")

	m.stateMu.RLock()
	fn := m.onInvalidate
	m.stateMu.RUnlock()
	if fn != nil {
		fn(cause)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func decodeProfile(raw []byte) (*api.Profile, error) {
	var p api.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// tokenExpired inspects the JWT exp claim with some leeway. The signature is
// not verified, the client holds no key material; a token that cannot be
// parsed locally or carries no exp is left for the server to judge.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now.Add(expiryLeeway))
}
