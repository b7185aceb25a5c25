// Package principalcontext threads the authenticated caller through a
// request context.
package principalcontext

import (
	"context"

	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/types"
)

type key string

const (
	principalKey key = "principalKey"
	profileKey   key = "profileKey"
)

func WithPrincipal(ctx context.Context, principal types.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// Principal returns the authenticated caller and false when the request was
// never authenticated.
func Principal(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(principalKey).(types.Principal)
	return p, ok
}

func WithProfile(ctx context.Context, profile *models.Profile) context.Context {
	return context.WithValue(ctx, profileKey, profile)
}

func Profile(ctx context.Context) *models.Profile {
	profile, ok := ctx.Value(profileKey).(*models.Profile)
	if !ok {
		return nil
	}
	return profile
}
