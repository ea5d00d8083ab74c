package prompts_test

import (
	"testing"

	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/prompts"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, tc *testutil.TestSetup) *prompts.Service {
	t.Helper()
	policy, err := authz.NewPolicy()
	require.NoError(t, err)
	gate := authz.NewGate(membership.NewStore(tc.Tx), policy)
	return prompts.NewService(prompts.NewStore(tc.Tx), gate, tc.Tx, audit.NewRecorder(tc.Tx), testutil.Logger())
}

func callerOf(p *models.Profile) authz.Caller {
	return authz.Caller{UserID: p.UserID, Email: p.Email, PlatformRole: p.PlatformRole}
}

func TestService_GlobalPromptsNeedPlatformSuperadmin(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(t, tc)
	ctx := testutil.TestContext(t)

	_, err := svc.Create(ctx, callerOf(tc.User), globalInput("Holiday"))
	assert.ErrorIs(t, err, authz.ErrPlatformRole)

	p, err := svc.Create(ctx, callerOf(tc.Super), globalInput("Holiday"))
	require.NoError(t, err)

	_, err = svc.Revise(ctx, callerOf(tc.User), p.ID, prompts.ReviseInput{Content: strPtr("x")})
	assert.ErrorIs(t, err, authz.ErrPlatformRole)

	// Drafts are invisible to ordinary users.
	_, err = svc.Get(ctx, callerOf(tc.User), p.ID)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	_, err = svc.ListGlobal(ctx, callerOf(tc.User), true)
	assert.ErrorIs(t, err, authz.ErrPlatformRole)

	_, err = svc.SetPublished(ctx, callerOf(tc.Super), p.ID, 1, true)
	require.NoError(t, err)

	got, err := svc.Get(ctx, callerOf(tc.User), p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublished)

	list, err := svc.ListGlobal(ctx, callerOf(tc.User), false)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	var audits int64
	require.NoError(t, tc.DB.Model(&models.AuditLog{}).Where("entity_id = ?", p.ID).Count(&audits).Error)
	assert.Equal(t, int64(2), audits)
}

func TestService_OrganizationPrompts(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(t, tc)
	ctx := testutil.TestContext(t)
	member, _ := tc.NewMember(t, models.RoleMember)
	outsider := testutil.CreateTestProfile(t, tc.DB, models.PlatformRoleNone)

	in := prompts.CreateInput{
		Scope:          models.PromptScopeOrganization,
		OrganizationID: &tc.Org.ID,
		Title:          "House style",
		Content:        "Brand colours only",
	}

	_, err := svc.Create(ctx, callerOf(member), in)
	assert.ErrorIs(t, err, authz.ErrForbidden)
	_, err = svc.Create(ctx, callerOf(outsider), in)
	assert.ErrorIs(t, err, authz.ErrNotMember)

	p, err := svc.Create(ctx, callerOf(tc.User), in)
	require.NoError(t, err)

	_, err = svc.Get(ctx, callerOf(member), p.ID)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	_, err = svc.SetPublished(ctx, callerOf(tc.User), p.ID, 1, true)
	require.NoError(t, err)

	got, err := svc.Get(ctx, callerOf(member), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "House style", got.Title)
	_, err = svc.Get(ctx, callerOf(outsider), p.ID)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	selectable, err := svc.ListForOrganization(ctx, callerOf(member), tc.Org.ID, false)
	require.NoError(t, err)
	assert.Len(t, selectable, 1)

	_, err = svc.ListForOrganization(ctx, callerOf(member), tc.Org.ID, true)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	_, err = svc.Versions(ctx, callerOf(member), p.ID)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	require.NoError(t, svc.Delete(ctx, callerOf(tc.User), p.ID))
	_, err = svc.Get(ctx, callerOf(tc.User), p.ID)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}
