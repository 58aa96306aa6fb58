package httpapi

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"gestio.app/internal/auth"
	"gestio.app/internal/identity"
	"gestio.app/internal/menu"
	"gestio.app/internal/session"
)

type sessionResponse struct {
	session.Snapshot
	HasToken  bool       `json:"has_token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type permissionsResponse struct {
	Mode    string   `json:"mode"`
	Codes   []string `json:"codes"`
	Allowed bool     `json:"allowed"`
}

type grantRequest struct {
	Code string `json:"code"`
}

type appResponse struct {
	Allowed bool   `json:"allowed"`
	Path    string `json:"path"`
	InMenu  bool   `json:"in_menu"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Snapshot: a.deps.Session.State()}
	if tok := a.deps.Tokens.Access(r.Context()); tok != "" {
		resp.HasToken = true
		if exp, ok := identity.ExpiresAt(tok); ok {
			resp.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.ProfileFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusNotFound, errNotSignedIn.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.ProfileFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": menu.Build(p),
	})
}

// handlePermissions answers ?code=a&code=b&mode=any|all. A single code
// without mode is a plain HasPermission check; multiple codes default to all.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var codes []string
	for _, raw := range q["code"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
	}
	mode := strings.ToLower(strings.TrimSpace(q.Get("mode")))
	p, _ := auth.ProfileFromContext(r.Context())

	resp := permissionsResponse{Codes: codes}
	if resp.Codes == nil {
		resp.Codes = []string{}
	}
	switch mode {
	case "":
		if len(codes) == 1 {
			resp.Mode = "one"
			resp.Allowed = auth.HasPermission(p, codes[0])
			break
		}
		resp.Mode = "all"
		resp.Allowed = auth.HasAllPermissions(p, codes)
	case "all":
		resp.Mode = mode
		resp.Allowed = auth.HasAllPermissions(p, codes)
	case "any":
		resp.Mode = mode
		resp.Allowed = auth.HasAnyPermission(p, codes)
	default:
		writeError(w, r, http.StatusBadRequest, "mode must be any or all")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAddGrant(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r, auth.PermRolesView); err != nil {
		writeAccessError(w, r, err)
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}
	a.deps.Profiles.AddPermissionGrant(r.Context(), auth.PermissionGrant{Code: req.Code})
	writeJSON(w, http.StatusOK, a.deps.Profiles.User())
}

func (a *API) handleGuard(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if !isLocalRoute(path) {
		writeError(w, r, http.StatusBadRequest, "path must be an absolute route")
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Guard.BeforeNavigate(r.Context(), path))
}

// handleApp guards the protected area directly: a denied navigation becomes
// a 302 to sign-in.
func (a *API) handleApp(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.URL.Path, "/app")
	if target == "" {
		target = "/"
	}
	if !isLocalRoute(target) {
		writeError(w, r, http.StatusBadRequest, "path must be an absolute route")
		return
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	d := a.deps.Guard.BeforeNavigate(r.Context(), target)
	if !d.Allowed {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}
	p := a.deps.Profiles.User()
	route := strings.TrimPrefix(r.URL.Path, "/app")
	writeJSON(w, http.StatusOK, appResponse{
		Allowed: true,
		Path:    target,
		InMenu:  slices.Contains(menu.Routes(p), route),
	})
}

// isLocalRoute accepts a path on this host only; protocol-relative forms
// such as //host are not routes.
func isLocalRoute(p string) bool {
	if !strings.HasPrefix(p, "/") || (len(p) > 1 && (p[1] == '/' || p[1] == '\\')) {
		return false
	}
	return !strings.ContainsAny(p, "\r\n")
}
