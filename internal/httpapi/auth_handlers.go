package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gestio.app/internal/account"
	"gestio.app/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	p, err := a.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req identity.Registration
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name, email and password are required")
		return
	}
	p, err := a.deps.Accounts.Register(r.Context(), req)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "old_password and new_password are required")
		return
	}
	p, err := a.deps.Accounts.ChangePassword(r.Context(), req.OldPassword, req.NewPassword)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := a.deps.Accounts.Refresh(r.Context())
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.deps.Accounts.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func handleAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthorized), errors.Is(err, account.ErrNoRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "rejected by identity service")
	case errors.Is(err, identity.ErrConflict):
		writeError(w, r, http.StatusConflict, "account already exists")
	case errors.Is(err, identity.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "identity service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
