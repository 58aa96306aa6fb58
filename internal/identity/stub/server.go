// Package stub is an in-memory identity service for development and tests.
// It speaks the same HTTP contract as the production identity API.
package stub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gestio.app/internal/auth"
	"gestio.app/internal/obs"
)

var (
	errAccountExists = errors.New("account already exists")
	errBadLogin      = errors.New("invalid email or password")
)

type account struct {
	hash    string
	profile auth.UserProfile
}

// Options configures Server.
type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     *zap.Logger
}

// Server holds accounts and revoked token ids in memory.
type Server struct {
	signer     *Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *zap.Logger

	mu          sync.Mutex
	accounts    map[string]*account
	revoked     map[string]time.Time
	nextCompany int64
	nextRole    int64
}

func New(opts Options) (*Server, error) {
	signer, err := NewSigner(opts.Secret)
	if err != nil {
		return nil, err
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = obs.Logger()
	}
	return &Server{
		signer:      signer,
		accessTTL:   opts.AccessTTL,
		refreshTTL:  opts.RefreshTTL,
		log:         opts.Logger.Named("identity-stub"),
		accounts:    make(map[string]*account),
		revoked:     make(map[string]time.Time),
		nextCompany: 1,
		nextRole:    1,
	}, nil
}

// AddAccount registers email with password and profile. The profile email
// is overwritten with the normalised email.
func (s *Server) AddAccount(email, password string, profile auth.UserProfile) error {
	email = normalizeEmail(email)
	if email == "" {
		return errors.New("email is required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	profile.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return errAccountExists
	}
	s.accounts[email] = &account{hash: hash, profile: *profile.Clone()}
	if profile.Company != nil && profile.Company.ID >= s.nextCompany {
		s.nextCompany = profile.Company.ID + 1
	}
	for _, r := range profile.Roles {
		if r.ID >= s.nextRole {
			s.nextRole = r.ID + 1
		}
	}
	return nil
}

// Seed emails.
const (
	SuperadminEmail = "admin@gestio.local"
	SalesEmail      = "ventas@acme.test"
)

// SeedDefaults adds a superadmin and a company user whose only role grants
// the sales view.
func (s *Server) SeedDefaults(password string) error {
	all := make(map[string]bool, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		all[p.Code] = true
	}
	if err := s.AddAccount(SuperadminEmail, password, auth.UserProfile{
		Name:  "Administración Gestio",
		Roles: []auth.Role{{ID: 1, Name: "Superadmin", ByCode: all}},
	}); err != nil {
		return err
	}
	return s.AddAccount(SalesEmail, password, auth.UserProfile{
		Name:    "Vendedor Acme",
		Company: &auth.CompanyRef{ID: 1, Name: "Acme"},
		Roles: []auth.Role{{
			ID:     2,
			Name:   "Vendedor",
			Grants: []auth.PermissionGrant{{Code: auth.PermSalesView}},
		}},
	})
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/change-password", s.handleChangePassword)
		r.Post("/logout", s.handleLogout)
		r.Get("/me", s.handleMe)
		r.Get("/validate", s.handleValidate)
	})
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email := normalizeEmail(req.Email)

	s.mu.Lock()
	acc, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok || verifyPassword(acc.hash, req.Password) != nil {
		s.log.Info("login rejected", zap.String("email", email))
		writeError(w, http.StatusUnauthorized, errBadLogin.Error())
		return
	}
	s.writeTokens(w, http.StatusOK, email)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		CompanyName string `json:"company_name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if req.Name == "" || req.CompanyName == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "name, email and company_name are required")
		return
	}

	grants := make([]auth.PermissionGrant, 0, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		grants = append(grants, auth.PermissionGrant{Code: p.Code})
	}
	s.mu.Lock()
	company := &auth.CompanyRef{ID: s.nextCompany, Name: req.CompanyName}
	role := auth.Role{ID: s.nextRole, Name: "Administrador", Grants: grants}
	s.nextCompany++
	s.nextRole++
	s.mu.Unlock()

	err := s.AddAccount(req.Email, req.Password, auth.UserProfile{
		Name:    req.Name,
		Company: company,
		Roles:   []auth.Role{role},
	})
	switch {
	case errors.Is(err, errAccountExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, errWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not create account")
		return
	}
	s.log.Info("account registered", zap.String("email", normalizeEmail(req.Email)), zap.Int64("company_id", company.ID))
	s.writeTokens(w, http.StatusCreated, normalizeEmail(req.Email))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	claims, err := s.signer.Parse(req.RefreshToken, KindRefresh)
	if err != nil || s.isRevoked(claims.ID) || !s.exists(claims.Subject) {
		writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
		return
	}
	s.revoke(claims)
	s.writeTokens(w, http.StatusOK, claims.Subject)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	acc := s.accounts[claims.Subject]
	if acc == nil || verifyPassword(acc.hash, req.OldPassword) != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "current password does not match")
		return
	}
	acc.hash = hash
	s.mu.Unlock()

	s.revoke(claims)
	s.writeTokens(w, http.StatusOK, claims.Subject)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.revoke(claims)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	acc := s.accounts[claims.Subject]
	var profile *auth.UserProfile
	if acc != nil {
		profile = acc.profile.Clone()
	}
	s.mu.Unlock()
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	claims, err := s.signer.Parse(token, KindAccess)
	if err != nil || s.isRevoked(claims.ID) || !s.exists(claims.Subject) {
		writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
		return nil, false
	}
	return claims, true
}

func (s *Server) writeTokens(w http.ResponseWriter, code int, subject string) {
	access, _, err := s.signer.Generate(subject, KindAccess, s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	refresh, _, err := s.signer.Generate(subject, KindRefresh, s.refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, code, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *Server) exists(subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[subject]
	return ok
}

func (s *Server) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

func (s *Server) revoke(claims *Claims) {
	now := s.signer.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
