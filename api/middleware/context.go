package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

type principalKey struct{}

// Principal is the caller resolved from the access token.
type Principal struct {
	UserID   string
	Role     string
	VendorID string
}

func principalFrom(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// WithPrincipal stores p on ctx, replacing any earlier caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).Role }

// VendorIDFromContext returns the vendor a vendor-role token acts for.
func VendorIDFromContext(ctx context.Context) string { return principalFrom(ctx).VendorID }

// UserUUIDFromContext parses the authenticated user id.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithUserID sets only the user on the current principal.
func WithUserID(ctx context.Context, userID string) context.Context {
	p := principalFrom(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

// WithRole sets only the role on the current principal.
func WithRole(ctx context.Context, role string) context.Context {
	p := principalFrom(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}

// RequireUserID returns the authenticated user id or an unauthorized error.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserUUIDFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id missing from token")
	}
	return id, nil
}
