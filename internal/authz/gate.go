package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database/models"
)

var (
	ErrUnauthenticated = apperr.Unauthenticated("authentication required")
	ErrForbidden       = apperr.Forbidden("insufficient role for this operation")
	ErrNotMember       = apperr.NotFound("organization not found")
	ErrPlatformRole    = apperr.Forbidden("platform superadmin role required")
)

// Caller is the resolved identity behind a request.
type Caller struct {
	UserID       uuid.UUID
	Email        string
	PlatformRole models.PlatformRole
}

func (c Caller) Authenticated() bool {
	return c.UserID != uuid.Nil
}

func (c Caller) IsPlatformSuperadmin() bool {
	return c.PlatformRole == models.PlatformRoleSuperadmin
}

// RoleResolver looks up a caller's membership role. It returns an error
// matching ErrNotMember when no membership exists.
type RoleResolver interface {
	Role(ctx context.Context, orgID, userID uuid.UUID) (models.Role, error)
}

// Gate decides whether a caller may act on an organization. It never writes.
type Gate struct {
	roles  RoleResolver
	policy *Policy
}

func NewGate(roles RoleResolver, policy *Policy) *Gate {
	return &Gate{roles: roles, policy: policy}
}

// Authorize returns the role the caller acts with. Platform superadmins pass
// every organization check without holding a membership.
func (g *Gate) Authorize(ctx context.Context, caller Caller, orgID uuid.UUID, action Action) (models.Role, error) {
	if !caller.Authenticated() {
		return "", ErrUnauthenticated
	}
	if caller.IsPlatformSuperadmin() {
		return models.RoleSuperadmin, nil
	}

	role, err := g.roles.Role(ctx, orgID, caller.UserID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return "", ErrNotMember
		}
		// Lookup failures deny.
		return "", apperr.From(err)
	}

	if !g.policy.Allows(role, action) {
		return role, g.forbidden(action)
	}
	return role, nil
}

// forbidden names the roles that would have been allowed.
func (g *Gate) forbidden(action Action) error {
	roles := g.policy.RolesFor(action)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	e := *ErrForbidden
	e.Fields = map[string]string{"required_roles": strings.Join(names, ",")}
	return &e
}

// RequirePlatformSuperadmin gates platform wide operations.
func RequirePlatformSuperadmin(caller Caller) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if !caller.IsPlatformSuperadmin() {
		return ErrPlatformRole
	}
	return nil
}

type callerKey struct{}

// WithCaller stores the resolved caller on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
