package auth

import "context"

type profileContextKey struct{}

// ContextWithProfile attaches the current user profile to the context.
func ContextWithProfile(ctx context.Context, profile *UserProfile) context.Context {
	if profile == nil {
		return ctx
	}
	return context.WithValue(ctx, profileContextKey{}, profile)
}

// ProfileFromContext extracts the profile previously attached with
// ContextWithProfile.
func ProfileFromContext(ctx context.Context) (*UserProfile, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(profileContextKey{}).(*UserProfile)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
