package profile

import (
	"context"

	"gestio.app/internal/kvstore"
)

// Tokens reads and writes the access and refresh tokens.
type Tokens struct {
	kv *kvstore.Store
}

func NewTokens(kv *kvstore.Store) *Tokens {
	return &Tokens{kv: kv}
}

// Access returns the stored access token or "".
func (t *Tokens) Access(ctx context.Context) string {
	return kvstore.Get(ctx, t.kv, KeyAccessToken, "")
}

// Refresh returns the stored refresh token or "".
func (t *Tokens) Refresh(ctx context.Context) string {
	return kvstore.Get(ctx, t.kv, KeyRefreshToken, "")
}

// Save stores both tokens. An empty refresh token keeps the previous one.
func (t *Tokens) Save(ctx context.Context, access, refresh string) {
	t.kv.Set(ctx, KeyAccessToken, access)
	if refresh != "" {
		t.kv.Set(ctx, KeyRefreshToken, refresh)
	}
}

// Clear removes both tokens.
func (t *Tokens) Clear(ctx context.Context) {
	t.kv.Remove(ctx, KeyAccessToken, KeyRefreshToken)
}
