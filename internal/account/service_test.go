package account

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gestio.app/internal/auth"
	"gestio.app/internal/identity"
	"gestio.app/internal/kvstore"
	"gestio.app/internal/obs"
	"gestio.app/internal/profile"
	"gestio.app/internal/session"
)

type fakeIdentity struct {
	pair      identity.TokenPair
	user      *auth.UserProfile
	loginErr  error
	userErr   error
	logoutErr error

	logouts   int
	refreshed string
	seenToken string
	tokens    *profile.Tokens
}

func (f *fakeIdentity) Login(ctx context.Context, email, password string) (identity.TokenPair, error) {
	return f.pair, f.loginErr
}

func (f *fakeIdentity) Register(ctx context.Context, reg identity.Registration) (identity.TokenPair, error) {
	return f.pair, f.loginErr
}

func (f *fakeIdentity) ChangePassword(ctx context.Context, oldPassword, newPassword string) (identity.TokenPair, error) {
	return f.pair, f.loginErr
}

func (f *fakeIdentity) Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error) {
	f.refreshed = refreshToken
	return f.pair, f.loginErr
}

func (f *fakeIdentity) Logout(ctx context.Context) error {
	f.logouts++
	return f.logoutErr
}

func (f *fakeIdentity) CurrentUser(ctx context.Context) (*auth.UserProfile, error) {
	f.seenToken = f.tokens.Access(ctx)
	return f.user.Clone(), f.userErr
}

type fixture struct {
	svc      *Service
	id       *fakeIdentity
	profiles *profile.Store
	tokens   *profile.Tokens
	session  *session.Cache
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))

	kv := kvstore.New(kvstore.NewMemory())
	profiles := profile.New(kv)
	tokens := profile.NewTokens(kv)
	cache := session.New()
	id := &fakeIdentity{
		pair:   identity.TokenPair{AccessToken: "acc-1", RefreshToken: "ref-1"},
		user:   &auth.UserProfile{Name: "Ana", Email: "ana@acme.test", Company: &auth.CompanyRef{ID: 1, Name: "Acme"}, Roles: []auth.Role{{ID: 1, Name: "Ventas"}}},
		tokens: tokens,
	}
	return &fixture{
		svc:      New(id, profiles, tokens, cache),
		id:       id,
		profiles: profiles,
		tokens:   tokens,
		session:  cache,
		logs:     logs,
	}
}

func (f *fixture) auditEvents() []string {
	var out []string
	for _, e := range f.logs.FilterMessage("audit event").All() {
		if ev, ok := e.ContextMap()["event"].(string); ok {
			out = append(out, ev)
		}
	}
	return out
}

func TestLoginEstablishesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.Login(ctx, "ana@acme.test", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.Email != "ana@acme.test" {
		t.Fatalf("profile = %+v", p)
	}
	if f.id.seenToken != "acc-1" {
		t.Fatalf("current user fetched with token %q", f.id.seenToken)
	}
	if f.tokens.Access(ctx) != "acc-1" || f.tokens.Refresh(ctx) != "ref-1" {
		t.Fatal("tokens not stored")
	}
	if f.profiles.User() == nil {
		t.Fatal("profile not stored")
	}
	if f.session.State().Authenticated != session.Authenticated {
		t.Fatalf("session = %v", f.session.State().Authenticated)
	}
	if got := f.auditEvents(); len(got) != 1 || got[0] != "account.login" {
		t.Fatalf("audit events = %v", got)
	}
}

func TestLoginFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.id.loginErr = identity.ErrUnauthorized

	if _, err := f.svc.Login(ctx, "ana@acme.test", "bad"); !errors.Is(err, identity.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if f.tokens.Access(ctx) != "" || f.profiles.User() != nil {
		t.Fatal("failed login stored state")
	}
	if f.session.State().Authenticated != session.Unknown {
		t.Fatalf("session = %v", f.session.State().Authenticated)
	}
	if got := f.auditEvents(); len(got) != 1 || got[0] != "account.login_failed" {
		t.Fatalf("audit events = %v", got)
	}
}

func TestCurrentUserFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.id.userErr = identity.ErrUnavailable

	if _, err := f.svc.Register(ctx, identity.Registration{Email: "x@y.z"}); !errors.Is(err, identity.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if f.tokens.Access(ctx) != "" || f.tokens.Refresh(ctx) != "" {
		t.Fatal("tokens left behind after failed profile fetch")
	}
	if f.profiles.User() != nil {
		t.Fatal("profile set")
	}
}

func TestEmptyAccessTokenIsAnError(t *testing.T) {
	f := newFixture(t)
	f.id.pair = identity.TokenPair{}
	if _, err := f.svc.ChangePassword(context.Background(), "a", "b"); !errors.Is(err, identity.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Refresh(ctx); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("Refresh without token = %v", err)
	}

	f.tokens.Save(ctx, "old-acc", "old-ref")
	f.id.pair = identity.TokenPair{AccessToken: "acc-2", RefreshToken: "ref-2"}
	if _, err := f.svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if f.id.refreshed != "old-ref" {
		t.Fatalf("refreshed with %q", f.id.refreshed)
	}
	if f.tokens.Access(ctx) != "acc-2" || f.tokens.Refresh(ctx) != "ref-2" {
		t.Fatal("tokens not rotated")
	}
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Login(ctx, "ana@acme.test", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.id.loginErr = identity.ErrUnauthorized
	if _, err := f.svc.Refresh(ctx); !errors.Is(err, identity.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if f.profiles.User() != nil || f.tokens.Refresh(ctx) != "" {
		t.Fatal("rejected refresh kept the session")
	}
	if f.session.State().Authenticated != session.Unknown {
		t.Fatalf("session = %v", f.session.State().Authenticated)
	}
}

func TestLogoutIsBestEffort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Login(ctx, "ana@acme.test", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.id.logoutErr = identity.ErrUnavailable

	f.svc.Logout(ctx)

	if f.id.logouts != 1 {
		t.Fatalf("remote logouts = %d", f.id.logouts)
	}
	if f.profiles.User() != nil || f.tokens.Access(ctx) != "" || f.tokens.Refresh(ctx) != "" {
		t.Fatal("local state survived logout")
	}
	if f.session.State().Authenticated != session.Unknown {
		t.Fatalf("session = %v", f.session.State().Authenticated)
	}
	events := f.auditEvents()
	if events[len(events)-1] != "account.logout" {
		t.Fatalf("audit events = %v", events)
	}

	f.svc.Logout(ctx)
	if f.id.logouts != 1 {
		t.Fatal("logout without a token called the identity service")
	}
}
