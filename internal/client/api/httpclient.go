package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Backend endpoint paths. The base URL is external configuration.
const (
	pathRegister             = "/api/system/auth/register/"
	pathLogin                = "/api/system/auth/login/"
	pathForgotPassword       = "/api/system/auth/forgot-password/"
	pathVerifyEmail          = "/api/system/auth/verify-email/"
	pathResendOTP            = "/api/system/auth/resend-verification-code/"
	pathVerifyForgotPassword = "/api/system/auth/verify-forgot-password/"
	pathChangePassword       = "/api/system/auth/change-password/"
	pathLogout               = "/api/system/auth/logout/"
	pathWhoami               = "/api/system/auth/whoami/"
	pathRefresh              = "/api/token/refresh/"
)

const defaultTimeout = 15 * time.Second

// Config wires an HTTPClient.
type Config struct {
	// BaseURL of the identity backend, without a trailing slash.
	BaseURL string
	// Store backing the transport's token reads and refresh writes.
	Store credentials.Store
	// StoreMu, when set, is shared with the session layer to serialize
	// credential mutations. A private mutex is used when nil.
	StoreMu *sync.Mutex
	// Timeout for each request, refresh retry included. Defaults to 15s.
	Timeout time.Duration
	// Base is the underlying transport, http.DefaultTransport when nil.
	Base   http.RoundTripper
	Logger logging.Logger
}

// HTTPClient is the concrete Client talking JSON over HTTP through an
// AuthTransport.
type HTTPClient struct {
	baseURL   string
	http      *http.Client
	transport *AuthTransport
	logger    logging.Logger
}

func New(cfg Config) *HTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	transport := NewAuthTransport(cfg.Base, cfg.Store, baseURL+pathRefresh, cfg.StoreMu, logger)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:   baseURL,
		http:      &http.Client{Transport: transport, Timeout: timeout},
		transport: transport,
		logger:    logger,
	}
}

func (c *HTTPClient) OnSessionInvalidated(fn func(error)) {
	c.transport.OnSessionInvalidated(fn)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (c *HTTPClient) Register(ctx context.Context, email, username, password, confirmPassword string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, pathRegister, registerRequest{
		Email:           email,
		Username:        username,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, pathLogin, loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	if out.Tokens.Access == "" || out.Tokens.Refresh == "" {
		return nil, fmt.Errorf("login response is missing tokens")
	}
	out.raw = raw
	return &out, nil
}

type emailRequest struct {
	Email string `json:"email"`
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, email string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, pathForgotPassword, emailRequest{Email: email})
}

func (c *HTTPClient) ResendOTP(ctx context.Context, email string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, pathResendOTP, emailRequest{Email: email})
}

type verificationRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verification_code"`
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, email, code string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, pathVerifyEmail, verificationRequest{Email: email, VerificationCode: code})
}

func (c *HTTPClient) VerifyForgotPassword(ctx context.Context, email, code string) (*ResetTokenResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, pathVerifyForgotPassword, verificationRequest{Email: email, VerificationCode: code})
	if err != nil {
		return nil, err
	}

	var out ResetTokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding verify-forgot-password response: %w", err)
	}
	out.raw = raw
	return &out, nil
}

type changePasswordRequest struct {
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
	ResetToken         string `json:"reset_token"`
}

func (c *HTTPClient) ChangePassword(ctx context.Context, newPassword, confirmNewPassword, resetToken string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, pathChangePassword, changePasswordRequest{
		NewPassword:        newPassword,
		ConfirmNewPassword: confirmNewPassword,
		ResetToken:         resetToken,
	})
}

func (c *HTTPClient) Whoami(ctx context.Context) (*WhoamiResponse, error) {
	raw, err := c.do(ctx, http.MethodGet, pathWhoami, nil)
	if err != nil {
		return nil, err
	}

	out, err := ParseWhoamiResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding whoami response: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Logout(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, pathLogout, nil)
}

// do sends one JSON request through the auth transport and returns the raw
// response payload. Statuses >= 400 become *Error with the body preserved;
// transport-level failures are returned with common.ErrUnavailable attached
// so callers can distinguish "no response" from a backend rejection.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.mapError(path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

// mapError unwraps the url.Error shell and tags connectivity failures with
// the ErrUnavailable sentinel. Session expiry raised by the transport passes
// through for errors.Is matching.
func (c *HTTPClient) mapError(path string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	if errors.Is(err, common.ErrSessionExpired) {
		return err
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", common.ErrUnavailable, path, err)
	}
	return fmt.Errorf("request to %s failed: %w", path, err)
}
