package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoles struct {
	roles map[[2]uuid.UUID]models.Role
	err   error
}

func (f *fakeRoles) Role(_ context.Context, orgID, userID uuid.UUID) (models.Role, error) {
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[[2]uuid.UUID{orgID, userID}]
	if !ok {
		return "", authz.ErrNotMember
	}
	return role, nil
}

func newGate(t *testing.T, roles *fakeRoles) *authz.Gate {
	t.Helper()
	policy, err := authz.NewPolicy()
	require.NoError(t, err)
	return authz.NewGate(roles, policy)
}

func TestGate_Authorize(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	member, admin, orgSuper := uuid.New(), uuid.New(), uuid.New()

	roles := &fakeRoles{roles: map[[2]uuid.UUID]models.Role{
		{orgA, member}:   models.RoleMember,
		{orgA, admin}:    models.RoleAdmin,
		{orgA, orgSuper}: models.RoleSuperadmin,
	}}
	gate := newGate(t, roles)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  authz.Caller
		org     uuid.UUID
		action  authz.Action
		wantErr error
	}{
		{"member reads projects", authz.Caller{UserID: member}, orgA, authz.ActionProjectsRead, nil},
		{"member creates video", authz.Caller{UserID: member}, orgA, authz.ActionVideosCreate, nil},
		{"member cannot manage projects", authz.Caller{UserID: member}, orgA, authz.ActionProjectsManage, authz.ErrForbidden},
		{"member cannot manage prompts", authz.Caller{UserID: member}, orgA, authz.ActionPromptsManage, authz.ErrForbidden},
		{"member cannot adjust credits", authz.Caller{UserID: member}, orgA, authz.ActionCreditsAdjust, authz.ErrForbidden},
		{"admin manages projects", authz.Caller{UserID: admin}, orgA, authz.ActionProjectsManage, nil},
		{"admin cannot adjust credits", authz.Caller{UserID: admin}, orgA, authz.ActionCreditsAdjust, authz.ErrForbidden},
		{"membership superadmin adjusts credits", authz.Caller{UserID: orgSuper}, orgA, authz.ActionCreditsAdjust, nil},
		{"non member gets not found", authz.Caller{UserID: member}, orgB, authz.ActionProjectsRead, authz.ErrNotMember},
		{"anonymous is unauthenticated", authz.Caller{}, orgA, authz.ActionProjectsRead, authz.ErrUnauthenticated},
		{"platform superadmin needs no membership", authz.Caller{UserID: uuid.New(), PlatformRole: models.PlatformRoleSuperadmin}, orgB, authz.ActionCreditsAdjust, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authorize(ctx, tt.caller, tt.org, tt.action)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGate_Authorize_MemberDeniedOnEveryAdminAction(t *testing.T) {
	org, user := uuid.New(), uuid.New()
	gate := newGate(t, &fakeRoles{roles: map[[2]uuid.UUID]models.Role{{org, user}: models.RoleMember}})

	for _, action := range []authz.Action{authz.ActionProjectsManage, authz.ActionPromptsManage, authz.ActionMembersRead, authz.ActionCreditsAdjust} {
		_, err := gate.Authorize(context.Background(), authz.Caller{UserID: user}, org, action)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), string(action))
	}
}

func TestGate_Authorize_LookupFailureDenies(t *testing.T) {
	gate := newGate(t, &fakeRoles{err: errors.New("connection refused")})

	_, err := gate.Authorize(context.Background(), authz.Caller{UserID: uuid.New()}, uuid.New(), authz.ActionProjectsRead)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestGate_Authorize_ForbiddenNamesRequiredRoles(t *testing.T) {
	org, user := uuid.New(), uuid.New()
	gate := newGate(t, &fakeRoles{roles: map[[2]uuid.UUID]models.Role{{org, user}: models.RoleMember}})

	role, err := gate.Authorize(context.Background(), authz.Caller{UserID: user}, org, authz.ActionProjectsManage)
	assert.Equal(t, models.RoleMember, role)
	require.ErrorIs(t, err, authz.ErrForbidden)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "admin,superadmin", appErr.Fields["required_roles"])
	assert.Empty(t, authz.ErrForbidden.Fields)

	_, err = gate.Authorize(context.Background(), authz.Caller{UserID: user}, org, authz.ActionCreditsAdjust)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "superadmin", appErr.Fields["required_roles"])
}

func TestRequirePlatformSuperadmin(t *testing.T) {
	assert.ErrorIs(t, authz.RequirePlatformSuperadmin(authz.Caller{}), authz.ErrUnauthenticated)
	assert.ErrorIs(t, authz.RequirePlatformSuperadmin(authz.Caller{UserID: uuid.New()}), authz.ErrPlatformRole)
	assert.NoError(t, authz.RequirePlatformSuperadmin(authz.Caller{UserID: uuid.New(), PlatformRole: models.PlatformRoleSuperadmin}))
}

func TestPolicy_RolesFor(t *testing.T) {
	policy, err := authz.NewPolicy()
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.Role{models.RoleSuperadmin}, policy.RolesFor(authz.ActionCreditsAdjust))
	assert.Equal(t, []models.Role{models.RoleAdmin, models.RoleSuperadmin}, policy.RolesFor(authz.ActionProjectsManage))
	assert.False(t, policy.Allows(models.Role("owner"), authz.ActionProjectsRead))
}
