package httpapi

import (
	"errors"
	"net/http"

	"gestio.app/internal/auth"
)

var (
	errNotSignedIn = errors.New("not signed in")
	errForbidden   = errors.New("permission denied")
)

// withProfile attaches the current profile to the request context so audit
// entries and handlers see who is signed in.
func (a *API) withProfile(next http.Handler) http.Handler {
	if a.deps.Profiles == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithProfile(r.Context(), a.deps.Profiles.User())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requirePermission(r *http.Request, perm string) error {
	p, ok := auth.ProfileFromContext(r.Context())
	if !ok {
		return errNotSignedIn
	}
	if !auth.HasPermission(p, perm) {
		return errForbidden
	}
	return nil
}

func writeAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNotSignedIn):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, r, http.StatusForbidden, err.Error())
	}
}
