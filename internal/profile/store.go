// Package profile keeps the signed-in user's profile and tokens, mirrored
// into the durable key-value store.
package profile

import (
	"context"
	"sync"

	"gestio.app/internal/auth"
	"gestio.app/internal/kvstore"
)

// Durable keys.
const (
	KeyUser         = "user"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Store holds the single current profile. Safe for concurrent use.
type Store struct {
	kv *kvstore.Store

	mu   sync.RWMutex
	user *auth.UserProfile
}

// New returns an empty store backed by kv.
func New(kv *kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Restore loads the profile persisted by a previous run, if any.
func (s *Store) Restore(ctx context.Context) *auth.UserProfile {
	p := kvstore.Get[*auth.UserProfile](ctx, s.kv, KeyUser, nil)
	s.mu.Lock()
	s.user = p
	s.mu.Unlock()
	return p.Clone()
}

// User returns a copy of the current profile, or nil.
func (s *Store) User() *auth.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// SetUser replaces the current profile. A nil profile removes the durable
// copy.
func (s *Store) SetUser(ctx context.Context, p *auth.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = p.Clone()
	if s.user == nil {
		s.kv.Remove(ctx, KeyUser)
		return
	}
	s.kv.Set(ctx, KeyUser, s.user)
}

// AddPermissionGrant adds grant to every role that lacks it. It does nothing
// without a user or roles.
func (s *Store) AddPermissionGrant(ctx context.Context, grant auth.PermissionGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || len(s.user.Roles) == 0 {
		return
	}
	for i := range s.user.Roles {
		role := &s.user.Roles[i]
		if !hasGrant(role.Grants, grant.Code) {
			role.Grants = append(role.Grants, grant)
		}
	}
	s.kv.Set(ctx, KeyUser, s.user)
}

// Reset forgets the profile and both tokens.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.kv.Remove(ctx, KeyUser, KeyAccessToken, KeyRefreshToken)
}

func hasGrant(grants []auth.PermissionGrant, code string) bool {
	for _, g := range grants {
		if g.Code == code {
			return true
		}
	}
	return false
}
