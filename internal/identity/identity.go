// Package identity describes who is calling. Authentication itself lives elsewhere; this package
// only carries the resolved user id and role through the request.
package identity

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// ParseRole maps a claim value onto a Role. Unknown values fall back to RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	}
	return RoleUser
}

type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanManageStations reports whether the caller may use owner routes.
func (c Caller) CanManageStations() bool {
	return c.Role == RoleOwner || c.Role == RoleAdmin
}

type contextKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	if !ok || c.UserID == "" {
		return Caller{}, false
	}
	return c, true
}
