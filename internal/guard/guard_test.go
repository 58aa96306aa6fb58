package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gestio.app/internal/session"
)

type staticTokens string

func (s staticTokens) Access(context.Context) string { return string(s) }

type fakeValidator struct {
	calls   atomic.Int32
	valid   bool
	err     error
	release chan struct{}
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (bool, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.valid, f.err
}

func TestNoTokenRedirectsWithoutRemoteCall(t *testing.T) {
	cache := session.New()
	v := &fakeValidator{valid: true}
	g := New(cache, staticTokens(""), v)

	d := g.BeforeNavigate(context.Background(), "/ventas?page=2")
	if d.Allowed {
		t.Fatal("expected redirect")
	}
	if d.Redirect != "/signin?redirect=%2Fventas%3Fpage%3D2" {
		t.Fatalf("redirect = %q", d.Redirect)
	}
	if v.calls.Load() != 0 {
		t.Fatalf("remote calls = %d, want 0", v.calls.Load())
	}
	if cache.State().Authenticated != session.Unauthenticated {
		t.Fatalf("state = %v", cache.State().Authenticated)
	}
}

// signInDuringRead simulates a login that lands between the guard's snapshot
// and its token read.
type signInDuringRead struct{ cache *session.Cache }

func (s signInDuringRead) Access(context.Context) string {
	s.cache.Reset()
	s.cache.SetAuthenticated(true)
	return ""
}

func TestNoTokenDoesNotOverwriteConcurrentSignIn(t *testing.T) {
	cache := session.New()
	v := &fakeValidator{}
	g := New(cache, signInDuringRead{cache: cache}, v)

	d := g.BeforeNavigate(context.Background(), "/ventas")
	if !d.Allowed {
		t.Fatalf("expected the fresh sign-in to allow, got %+v", d)
	}
	if got := cache.State().Authenticated; got != session.Authenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
	if d := g.BeforeNavigate(context.Background(), "/ventas"); !d.Allowed {
		t.Fatalf("next navigation = %+v", d)
	}
	if v.calls.Load() != 0 {
		t.Fatalf("remote calls = %d, want 0", v.calls.Load())
	}
}

func TestRemoteOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		valid     bool
		err       error
		allowed   bool
		wantState session.State
	}{
		{"valid", true, nil, true, session.Authenticated},
		{"invalid", false, nil, false, session.Unauthenticated},
		{"rejected", true, errors.New("connection refused"), false, session.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cache := session.New()
			g := New(cache, staticTokens("tok"), &fakeValidator{valid: tc.valid, err: tc.err})
			d := g.BeforeNavigate(context.Background(), "/compras")
			if d.Allowed != tc.allowed {
				t.Fatalf("decision = %+v", d)
			}
			if !tc.allowed && d.Redirect != "/signin?redirect=%2Fcompras" {
				t.Fatalf("redirect = %q", d.Redirect)
			}
			if got := cache.State().Authenticated; got != tc.wantState {
				t.Fatalf("state = %v, want %v", got, tc.wantState)
			}
		})
	}
}

func TestSecondNavigationUsesCache(t *testing.T) {
	v := &fakeValidator{valid: true}
	g := New(session.New(), staticTokens("tok"), v)
	for i := 0; i < 3; i++ {
		if d := g.BeforeNavigate(context.Background(), "/dashboard"); !d.Allowed {
			t.Fatalf("navigation %d denied", i)
		}
	}
	if n := v.calls.Load(); n != 1 {
		t.Fatalf("remote calls = %d, want 1", n)
	}
}

func TestCachedDenialRedirects(t *testing.T) {
	cache := session.New()
	cache.SetAuthenticated(false)
	v := &fakeValidator{valid: true}
	g := New(cache, staticTokens("tok"), v, WithSignInPath("/login"))
	d := g.BeforeNavigate(context.Background(), "/roles")
	if d.Allowed || d.Redirect != "/login?redirect=%2Froles" {
		t.Fatalf("decision = %+v", d)
	}
	if v.calls.Load() != 0 {
		t.Fatal("cached denial made a remote call")
	}
}

func TestConcurrentNavigationsShareValidation(t *testing.T) {
	v := &fakeValidator{valid: true, release: make(chan struct{})}
	cache := session.New()
	g := New(cache, staticTokens("tok"), v)

	const n = 6
	var wg sync.WaitGroup
	decisions := make(chan Decision, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decisions <- g.BeforeNavigate(context.Background(), "/inventario")
		}()
	}

	deadline := time.Now().Add(time.Second)
	for !cache.State().Validating {
		if time.Now().After(deadline) {
			t.Fatal("validation never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(v.release)
	wg.Wait()
	close(decisions)

	for d := range decisions {
		if !d.Allowed {
			t.Fatalf("decision = %+v", d)
		}
	}
	if got := v.calls.Load(); got != 1 {
		t.Fatalf("remote calls = %d, want 1", got)
	}
}

func TestTimeoutFailsClosed(t *testing.T) {
	v := &fakeValidator{valid: true, release: make(chan struct{})}
	cache := session.New()
	g := New(cache, staticTokens("tok"), v, WithTimeout(10*time.Millisecond))

	d := g.BeforeNavigate(context.Background(), "/usuarios")
	if d.Allowed {
		t.Fatal("timed out validation allowed navigation")
	}
	if cache.State().Authenticated != session.Unauthenticated {
		t.Fatalf("state = %v", cache.State().Authenticated)
	}
}

func TestSignInURL(t *testing.T) {
	g := New(session.New(), staticTokens(""), &fakeValidator{})
	if got := g.SignInURL(""); got != "/signin" {
		t.Fatalf("SignInURL(\"\") = %q", got)
	}
	if got := g.SignInURL("/reportes/ventas"); got != "/signin?redirect=%2Freportes%2Fventas" {
		t.Fatalf("SignInURL = %q", got)
	}
}
