package stub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"gestio.app/internal/auth"
)

const testPassword = "gestio123"

type stubClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newStubClient(t *testing.T) *stubClient {
	t.Helper()
	s, err := New(Options{Secret: "0123456789abcdef", Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SeedDefaults(testPassword); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &stubClient{t: t, srv: srv}
}

func (c *stubClient) do(method, path, token string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (c *stubClient) login(email string) (string, string) {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status = %d body=%v", resp.StatusCode, body)
	}
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestLoginAndMe(t *testing.T) {
	c := newStubClient(t)
	access, _ := c.login("VENTAS@acme.test")

	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer resp.Body.Close()
	var profile auth.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.Email != SalesEmail || profile.Company == nil || profile.Company.Name != "Acme" {
		t.Fatalf("profile = %+v", profile)
	}
	if !auth.HasPermission(&profile, auth.PermSalesView) || auth.HasPermission(&profile, auth.PermPurchasesView) {
		t.Fatalf("unexpected permissions: %+v", profile.Roles)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	c := newStubClient(t)
	resp, body := c.do(http.MethodPost, "/auth/login", "", map[string]string{"email": SalesEmail, "password": "nope-nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestValidateAndLogout(t *testing.T) {
	c := newStubClient(t)
	access, _ := c.login(SuperadminEmail)

	resp, body := c.do(http.MethodGet, "/auth/validate", access, nil)
	if resp.StatusCode != http.StatusOK || body["valid"] != true {
		t.Fatalf("validate = %d %v", resp.StatusCode, body)
	}

	resp, _ = c.do(http.MethodPost, "/auth/logout", access, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	resp, _ = c.do(http.MethodGet, "/auth/validate", access, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token validate status = %d", resp.StatusCode)
	}
	resp, _ = c.do(http.MethodGet, "/auth/validate", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}
}

func TestRefreshRotates(t *testing.T) {
	c := newStubClient(t)
	_, refresh := c.login(SalesEmail)

	resp, body := c.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if resp.StatusCode != http.StatusOK || body["access_token"] == nil {
		t.Fatalf("refresh = %d %v", resp.StatusCode, body)
	}
	resp, _ = c.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d", resp.StatusCode)
	}

	access, _ := c.login(SalesEmail)
	resp, _ = c.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": access})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("access token accepted as refresh token: %d", resp.StatusCode)
	}
}

func TestRegister(t *testing.T) {
	c := newStubClient(t)
	reg := map[string]string{
		"name":         "Marta",
		"email":        "marta@tienda.test",
		"password":     "tienda-2024",
		"company_name": "Tienda Marta",
	}
	resp, body := c.do(http.MethodPost, "/auth/register", "", reg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register = %d %v", resp.StatusCode, body)
	}

	resp, _ = c.do(http.MethodPost, "/auth/register", "", reg)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", resp.StatusCode)
	}

	reg["email"] = "otra@tienda.test"
	reg["password"] = "short"
	resp, _ = c.do(http.MethodPost, "/auth/register", "", reg)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	c := newStubClient(t)
	access, _ := c.login(SalesEmail)

	resp, _ := c.do(http.MethodPost, "/auth/change-password", access, map[string]string{
		"old_password": "wrong-password",
		"new_password": "nueva-clave-1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong old password status = %d", resp.StatusCode)
	}

	resp, body := c.do(http.MethodPost, "/auth/change-password", access, map[string]string{
		"old_password": testPassword,
		"new_password": "nueva-clave-1",
	})
	if resp.StatusCode != http.StatusOK || body["access_token"] == nil {
		t.Fatalf("change password = %d %v", resp.StatusCode, body)
	}

	resp, _ = c.do(http.MethodGet, "/auth/validate", access, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old access token still valid: %d", resp.StatusCode)
	}
	resp, _ = c.do(http.MethodPost, "/auth/login", "", map[string]string{"email": SalesEmail, "password": "nueva-clave-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password = %d", resp.StatusCode)
	}
}
