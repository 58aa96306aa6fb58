// Package guard decides whether a navigation into the protected area may
// proceed.
package guard

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"gestio.app/internal/obs"
	"gestio.app/internal/session"
)

// Validator checks an access token with the identity service.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
}

// TokenSource yields the stored access token, or "".
type TokenSource interface {
	Access(ctx context.Context) string
}

// Decision is the outcome of BeforeNavigate. Redirect is set only when
// Allowed is false.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// Guard is safe for concurrent use.
type Guard struct {
	session   *session.Cache
	tokens    TokenSource
	validator Validator
	signIn    string
	timeout   time.Duration
	log       *zap.Logger
}

// Option configures Guard.
type Option func(*Guard)

// WithSignInPath sets the redirect target. Defaults to /signin.
func WithSignInPath(p string) Option {
	return func(g *Guard) {
		if p != "" {
			g.signIn = p
		}
	}
}

// WithTimeout bounds the remote validation call.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

func New(cache *session.Cache, tokens TokenSource, validator Validator, opts ...Option) *Guard {
	g := &Guard{
		session:   cache,
		tokens:    tokens,
		validator: validator,
		signIn:    "/signin",
		timeout:   10 * time.Second,
		log:       obs.Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named("guard")
	return g
}

// BeforeNavigate decides a navigation to path. Every failure denies.
func (g *Guard) BeforeNavigate(ctx context.Context, path string) Decision {
	snap := g.session.State()
	if snap.Known() {
		return g.decide(path, snap.Authenticated == session.Authenticated, "cache")
	}

	token := g.tokens.Access(ctx)
	if token == "" {
		// A sign-in that reset the session after our snapshot wins.
		if !g.session.SetAuthenticatedAt(snap.Generation, false) {
			if now := g.session.State(); now.Known() {
				return g.decide(path, now.Authenticated == session.Authenticated, "cache")
			}
		}
		return g.decide(path, false, "no_token")
	}

	ok, err := g.session.Validate(ctx, func(vctx context.Context) (bool, error) {
		vctx, cancel := context.WithTimeout(vctx, g.timeout)
		defer cancel()
		valid, err := g.validator.ValidateToken(vctx, token)
		switch {
		case err != nil:
			obs.ObserveTokenValidation("error")
		case valid:
			obs.ObserveTokenValidation("valid")
		default:
			obs.ObserveTokenValidation("invalid")
		}
		return valid, err
	})
	if err != nil {
		source := "remote_error"
		switch {
		case errors.Is(err, session.ErrStale):
			source = "stale"
		case ctx.Err() != nil:
			source = "caller_gone"
		}
		g.log.Warn("token validation failed", zap.String("path", path), zap.String("reason", source), zap.Error(err))
		return g.decide(path, false, source)
	}
	return g.decide(path, ok, "remote")
}

// SignInURL returns the sign-in target preserving path for the post-login
// redirect.
func (g *Guard) SignInURL(path string) string {
	if path == "" {
		return g.signIn
	}
	return g.signIn + "?redirect=" + url.QueryEscape(path)
}

func (g *Guard) decide(path string, allowed bool, source string) Decision {
	outcome := "allow"
	d := Decision{Allowed: true}
	if !allowed {
		outcome = "redirect"
		d = Decision{Redirect: g.SignInURL(path)}
	}
	obs.ObserveGuardDecision(outcome, source)
	g.log.Debug("navigation decided", zap.String("path", path), zap.String("outcome", outcome), zap.String("source", source))
	return d
}
