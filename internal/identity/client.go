// Package identity is the HTTP client for the remote identity service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"gestio.app/internal/auth"
	"gestio.app/internal/obs"
)

var (
	ErrUnauthorized = errors.New("identity: unauthorized")
	ErrForbidden    = errors.New("identity: forbidden")
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrConflict     = errors.New("identity: already exists")
	ErrUnavailable  = errors.New("identity: unavailable")
)

// TokenPair is what every token-issuing endpoint answers.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Registration is the sign-up payload.
type Registration struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}

// TokenSource yields the current access token for bearer calls.
type TokenSource interface {
	Access(ctx context.Context) string
}

// Client talks JSON over HTTP to the identity service. Safe for concurrent
// use.
type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func(context.Context)
	log            *zap.Logger
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUnauthorizedHook registers fn to run when a bearer call other than
// ValidateToken answers 401.
func WithUnauthorizedHook(fn func(context.Context)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a client for baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("identity: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("identity: base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
		log:    obs.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("identity")
	return c, nil
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/register", "", reg, &out)
	return out, err
}

// ChangePassword rotates the password and answers fresh tokens.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (TokenPair, error) {
	var out TokenPair
	err := c.doBearer(ctx, http.MethodPost, "/auth/change-password", map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}, &out)
	return out, err
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	return out, err
}

// Logout revokes the current access token.
func (c *Client) Logout(ctx context.Context) error {
	return c.doBearer(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// CurrentUser fetches the signed-in user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*auth.UserProfile, error) {
	var out auth.UserProfile
	if err := c.doBearer(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken asks whether token is still valid. A 401 answer is a plain
// false, not an error.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodGet, "/auth/validate", token, nil, &out)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

// ExpiresAt reads the exp claim of token without verifying its signature.
// It is for display only.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (c *Client) doBearer(ctx context.Context, method, path string, in, out any) error {
	token := ""
	if c.tokens != nil {
		token = c.tokens.Access(ctx)
	}
	if token == "" {
		return ErrUnauthorized
	}
	err := c.do(ctx, method, path, token, in, out)
	if errors.Is(err, ErrUnauthorized) && c.onUnauthorized != nil {
		c.log.Info("identity rejected the access token", zap.String("path", path))
		c.onUnauthorized(ctx)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("identity: encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("identity: build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("identity request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("identity request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		sentinel = ErrForbidden
	case resp.StatusCode == http.StatusConflict:
		sentinel = ErrConflict
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		sentinel = ErrInvalidInput
	default:
		sentinel = ErrUnavailable
	}
	return fmt.Errorf("%w: %s %s: %d %s", sentinel, method, path, resp.StatusCode, msg)
}
