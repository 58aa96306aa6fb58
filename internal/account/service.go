// Package account runs the sign-in, sign-up, password and sign-out flows.
// It is the only writer that creates or destroys the profile.
package account

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gestio.app/internal/audit"
	"gestio.app/internal/auth"
	"gestio.app/internal/identity"
	"gestio.app/internal/obs"
	"gestio.app/internal/profile"
	"gestio.app/internal/session"
)

// ErrNoRefreshToken is returned by Refresh when nothing is stored.
var ErrNoRefreshToken = errors.New("account: no refresh token stored")

// Identity is the subset of the identity client the flows use.
type Identity interface {
	Login(ctx context.Context, email, password string) (identity.TokenPair, error)
	Register(ctx context.Context, reg identity.Registration) (identity.TokenPair, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) (identity.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*auth.UserProfile, error)
}

// Service is safe for concurrent use.
type Service struct {
	identity Identity
	profiles *profile.Store
	tokens   *profile.Tokens
	session  *session.Cache
	log      *zap.Logger
}

func New(id Identity, profiles *profile.Store, tokens *profile.Tokens, cache *session.Cache) *Service {
	return &Service{
		identity: id,
		profiles: profiles,
		tokens:   tokens,
		session:  cache,
		log:      obs.Logger().Named("account"),
	}
}

// Login signs in with email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*auth.UserProfile, error) {
	pair, err := s.identity.Login(ctx, email, password)
	if err != nil {
		s.failed(ctx, "account.login_failed", err, zap.String("email", email))
		return nil, err
	}
	return s.establish(ctx, pair, "account.login")
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, reg identity.Registration) (*auth.UserProfile, error) {
	pair, err := s.identity.Register(ctx, reg)
	if err != nil {
		s.failed(ctx, "account.register_failed", err, zap.String("email", reg.Email))
		return nil, err
	}
	return s.establish(ctx, pair, "account.register")
}

// ChangePassword rotates the password of the signed-in user.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) (*auth.UserProfile, error) {
	pair, err := s.identity.ChangePassword(ctx, oldPassword, newPassword)
	if err != nil {
		s.failed(ctx, "account.change_password_failed", err)
		return nil, err
	}
	return s.establish(ctx, pair, "account.change_password")
}

// Refresh trades the stored refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context) (*auth.UserProfile, error) {
	rt := s.tokens.Refresh(ctx)
	if rt == "" {
		return nil, ErrNoRefreshToken
	}
	pair, err := s.identity.Refresh(ctx, rt)
	if err != nil {
		s.failed(ctx, "account.refresh_failed", err)
		if errors.Is(err, identity.ErrUnauthorized) {
			s.SignOutLocally(ctx)
		}
		return nil, err
	}
	return s.establish(ctx, pair, "account.refresh")
}

// Logout revokes the token remotely when possible and always forgets the
// local session.
func (s *Service) Logout(ctx context.Context) {
	p := s.profiles.User()
	if s.tokens.Access(ctx) != "" {
		if err := s.identity.Logout(ctx); err != nil {
			s.log.Warn("remote logout failed", zap.Error(err))
		}
	}
	s.SignOutLocally(ctx)
	_ = audit.LogEvent(auth.ContextWithProfile(ctx, p), "account.logout", nil)
}

// SignOutLocally drops the profile, both tokens and the session state. It is
// also the identity client's unauthorized hook.
func (s *Service) SignOutLocally(ctx context.Context) {
	s.profiles.Reset(ctx)
	s.session.Reset()
}

func (s *Service) establish(ctx context.Context, pair identity.TokenPair, event string) (*auth.UserProfile, error) {
	if pair.AccessToken == "" {
		s.SignOutLocally(ctx)
		return nil, fmt.Errorf("%w: empty access token", identity.ErrUnavailable)
	}
	s.tokens.Save(ctx, pair.AccessToken, pair.RefreshToken)

	p, err := s.identity.CurrentUser(ctx)
	if err != nil {
		s.failed(ctx, event+"_failed", err, zap.String("stage", "current_user"))
		s.SignOutLocally(ctx)
		return nil, err
	}
	s.profiles.SetUser(ctx, p)
	// Reset first so a validation of the previous token cannot overwrite us.
	s.session.Reset()
	s.session.SetAuthenticated(true)

	_ = audit.LogEvent(auth.ContextWithProfile(ctx, p), event, map[string]any{
		"company_id": companyID(p),
		"roles":      len(p.Roles),
	})
	return p.Clone(), nil
}

func (s *Service) failed(ctx context.Context, event string, err error, fields ...zap.Field) {
	s.log.Info("account flow failed", append(fields, zap.String("event", event), zap.Error(err))...)
	_ = audit.LogEvent(ctx, event, map[string]any{"error": err.Error()})
}

func companyID(p *auth.UserProfile) any {
	if p.Company == nil {
		return nil
	}
	return p.Company.ID
}
