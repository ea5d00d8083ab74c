package organizations_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/organizations"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(tc *testutil.TestSetup) *organizations.Service {
	return organizations.NewService(
		tc.Tx,
		membership.NewStore(tc.Tx),
		credits.NewLedger(tc.Tx, testutil.Logger()),
		audit.NewRecorder(tc.Tx),
		testutil.Logger(),
	)
}

func callerOf(p *models.Profile) authz.Caller {
	return authz.Caller{UserID: p.UserID, Email: p.Email, PlatformRole: p.PlatformRole}
}

func TestService_RequiresPlatformSuperadmin(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)

	// A membership superadmin is not a platform superadmin.
	orgSuper, _ := tc.NewMember(t, models.RoleSuperadmin)
	for _, caller := range []authz.Caller{callerOf(tc.User), callerOf(orgSuper)} {
		_, err := svc.Create(ctx, caller, organizations.CreateInput{Name: "Acme"})
		assert.ErrorIs(t, err, authz.ErrPlatformRole)
		_, _, err = svc.List(ctx, caller, organizations.ListFilter{})
		assert.ErrorIs(t, err, authz.ErrPlatformRole)
		assert.ErrorIs(t, svc.Delete(ctx, caller, tc.Org.ID), authz.ErrPlatformRole)
	}

	_, err := svc.Get(ctx, authz.Caller{}, tc.Org.ID)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestService_CreateWithAllocation(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)

	created, err := svc.Create(ctx, callerOf(tc.Super), organizations.CreateInput{
		Name:           "  Acme Studio ",
		Plan:           models.PlanPro,
		InitialCredits: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Studio", created.Name)
	assert.Equal(t, models.OrganizationActive, created.Status)
	assert.Equal(t, int64(500), created.Balance)

	var entries []models.LedgerEntry
	require.NoError(t, tc.DB.Where("organization_id = ?", created.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SourceAllocation, entries[0].Source)
	assert.Equal(t, int64(500), entries[0].Delta)

	_, err = svc.Create(ctx, callerOf(tc.Super), organizations.CreateInput{Name: "Bad", Plan: "gold"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestService_ListAggregates(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)

	tc.NewMember(t, models.RoleMember)
	testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	inactive := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	require.NoError(t, tc.DB.Model(inactive).Update("is_active", false).Error)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 75)
	empty := testutil.CreateTestOrg(t, tc.DB)

	list, total, err := svc.List(ctx, callerOf(tc.Super), organizations.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	byID := map[uuid.UUID]organizations.Summary{}
	for _, s := range list {
		byID[s.ID] = s
	}
	assert.Equal(t, int64(2), byID[tc.Org.ID].MembersCount)
	assert.Equal(t, int64(1), byID[tc.Org.ID].ProjectsCount)
	assert.Equal(t, int64(75), byID[tc.Org.ID].Balance)
	assert.Zero(t, byID[empty.ID].MembersCount)

	filtered, total, err := svc.List(ctx, callerOf(tc.Super), organizations.ListFilter{Search: tc.Org.Name[len(tc.Org.Name)-8:]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, tc.Org.ID, filtered[0].ID)
}

func TestService_GetAndUpdate(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)
	testutil.CreateTestProject(t, tc.DB, tc.Org.ID)

	detail, err := svc.Get(ctx, callerOf(tc.Super), tc.Org.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Members, 1)
	assert.Len(t, detail.Projects, 1)

	status := models.OrganizationSuspended
	updated, err := svc.Update(ctx, callerOf(tc.Super), tc.Org.ID, organizations.UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.OrganizationSuspended, updated.Status)

	blank := " "
	_, err = svc.Update(ctx, callerOf(tc.Super), tc.Org.ID, organizations.UpdateInput{Name: &blank})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Get(ctx, callerOf(tc.Super), uuid.New())
	assert.ErrorIs(t, err, organizations.ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 30)

	job := &models.VideoJob{
		OrganizationID:  tc.Org.ID,
		ProjectID:       project.ID,
		PromptTextFinal: "spin the logo",
		Status:          models.VideoProcessing,
		CostCredits:     10,
	}
	require.NoError(t, tc.DB.Create(job).Error)

	err := svc.Delete(ctx, callerOf(tc.Super), tc.Org.ID)
	assert.ErrorIs(t, err, organizations.ErrActiveJobs)

	require.NoError(t, tc.DB.Model(job).Update("status", models.VideoCompleted).Error)
	require.NoError(t, svc.Delete(ctx, callerOf(tc.Super), tc.Org.ID))

	_, err = membership.NewStore(tc.Tx).Role(ctx, tc.Org.ID, tc.User.UserID)
	assert.ErrorIs(t, err, authz.ErrNotMember)

	var entries int64
	require.NoError(t, tc.DB.Model(&models.LedgerEntry{}).Where("organization_id = ?", tc.Org.ID).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	_, err = svc.Get(ctx, callerOf(tc.Super), tc.Org.ID)
	assert.ErrorIs(t, err, organizations.ErrNotFound)
}

func TestService_Members(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newService(tc)
	ctx := testutil.TestContext(t)
	profile := testutil.CreateTestProfile(t, tc.DB, models.PlatformRoleNone)
	require.NoError(t, tc.DB.Model(profile).Update("default_organization_id", tc.Org.ID).Error)

	m, err := svc.AddMember(ctx, callerOf(tc.Super), tc.Org.ID, organizations.MemberRef{Email: profile.Email}, models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, profile.UserID, m.UserID)
	require.NotNil(t, m.Profile)

	_, err = svc.AddMember(ctx, callerOf(tc.Super), tc.Org.ID, organizations.MemberRef{UserID: &profile.UserID}, models.RoleAdmin)
	assert.ErrorIs(t, err, membership.ErrExists)

	_, err = svc.AddMember(ctx, callerOf(tc.Super), tc.Org.ID, organizations.MemberRef{Email: "nobody@example.com"}, models.RoleMember)
	assert.ErrorIs(t, err, organizations.ErrNoProfile)

	m, err = svc.UpdateMember(ctx, callerOf(tc.Super), tc.Org.ID, profile.UserID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, m.Role)

	members, err := svc.ListMembers(ctx, callerOf(tc.Super), tc.Org.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, svc.RemoveMember(ctx, callerOf(tc.Super), tc.Org.ID, profile.UserID))
	var reloaded models.Profile
	require.NoError(t, tc.DB.First(&reloaded, "user_id = ?", profile.UserID).Error)
	assert.Nil(t, reloaded.DefaultOrganizationID)

	logs, total, err := svc.AuditLogs(ctx, callerOf(tc.Super), tc.Org.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, audit.ActionMemberRemove, logs[0].Action)
}
