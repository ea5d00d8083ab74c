package credits_test

import (
	"testing"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/settings"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCreditsService(t *testing.T, tc *testutil.TestSetup) *credits.Service {
	t.Helper()
	policy, err := authz.NewPolicy()
	require.NoError(t, err)
	rec := audit.NewRecorder(tc.Tx)
	return credits.NewService(
		credits.NewLedger(tc.Tx, testutil.Logger()),
		credits.NewCapTracker(tc.Tx),
		settings.NewService(tc.Tx, rec, testutil.Logger()),
		authz.NewGate(membership.NewStore(tc.Tx), policy),
		tc.Tx,
		rec,
		testutil.Logger(),
	)
}

func callerOf(p *models.Profile) authz.Caller {
	return authz.Caller{UserID: p.UserID, Email: p.Email, PlatformRole: p.PlatformRole}
}

func TestService_Summary(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newCreditsService(t, tc)
	ctx := testutil.TestContext(t)
	member, _ := tc.NewMember(t, models.RoleMember)
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 100)

	ledger := credits.NewLedger(tc.Tx, testutil.Logger())
	_, err := ledger.Apply(ctx, credits.Entry{OrganizationID: tc.Org.ID, ProjectID: &project.ID, Delta: -10, Source: models.SourceDebit})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, callerOf(member), tc.Org.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(90), summary.Balance)
	assert.Equal(t, settings.Defaults().CreditsPerVideo, summary.CreditsPerVideo)
	assert.Equal(t, int64(10), summary.UsedThisMonth)
	assert.Len(t, summary.Recent, 2)
	assert.Len(t, summary.Projects, 1)

	outsider := testutil.CreateTestProfile(t, tc.DB, models.PlatformRoleNone)
	_, err = svc.Summary(ctx, callerOf(outsider), tc.Org.ID, 5)
	assert.ErrorIs(t, err, authz.ErrNotMember)
}

func TestService_AdjustIsExactSuperadminRole(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newCreditsService(t, tc)
	ctx := testutil.TestContext(t)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 50)
	orgSuper, _ := tc.NewMember(t, models.RoleSuperadmin)

	// Admin does not inherit credits:adjust.
	_, err := svc.Adjust(ctx, callerOf(tc.User), tc.Org.ID, 5, "goodwill", nil)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	entry, err := svc.Adjust(ctx, callerOf(orgSuper), tc.Org.ID, -20, "duplicate top up", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), entry.BalanceAfter)

	_, err = svc.Adjust(ctx, callerOf(orgSuper), tc.Org.ID, 5, "", nil)
	assert.ErrorIs(t, err, credits.ErrReasonRequired)

	var audits int64
	require.NoError(t, tc.DB.Model(&models.AuditLog{}).Where("action = ?", audit.ActionCreditsAdjust).Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestService_AdjustRejectsForeignProject(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newCreditsService(t, tc)
	ctx := testutil.TestContext(t)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 50)
	orgSuper, _ := tc.NewMember(t, models.RoleSuperadmin)

	other := testutil.CreateTestOrg(t, tc.DB)
	foreign := testutil.CreateTestProject(t, tc.DB, other.ID)
	own := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)

	_, err := svc.Adjust(ctx, callerOf(orgSuper), tc.Org.ID, -20, "misbooked render", &foreign.ID)
	assert.ErrorIs(t, err, credits.ErrProjectNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	ledger := credits.NewLedger(tc.Tx, testutil.Logger())
	sums, err := ledger.SumBySource(ctx, credits.Scope{OrganizationID: &other.ID, ProjectID: &foreign.ID})
	require.NoError(t, err)
	assert.Empty(t, sums)

	balance, err := ledger.Balance(ctx, tc.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	entry, err := svc.Adjust(ctx, callerOf(orgSuper), tc.Org.ID, -20, "misbooked render", &own.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.ProjectID)
	assert.Equal(t, own.ID, *entry.ProjectID)

	// a project id alone never reaches across organizations
	sums, err = ledger.SumBySource(ctx, credits.Scope{OrganizationID: &other.ID, ProjectID: &own.ID})
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestService_Allocate(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := newCreditsService(t, tc)
	ctx := testutil.TestContext(t)

	_, err := svc.Allocate(ctx, callerOf(tc.User), tc.Org.ID, models.SourceAllocation, 100, "")
	assert.ErrorIs(t, err, authz.ErrPlatformRole)

	entry, err := svc.Allocate(ctx, callerOf(tc.Super), tc.Org.ID, models.SourceAllocation, 100, "monthly plan")
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.BalanceAfter)

	_, err = svc.Allocate(ctx, callerOf(tc.Super), tc.Org.ID, models.SourceRefund, 10, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Allocate(ctx, callerOf(tc.Super), tc.Org.ID, models.SourceAdjustment, -150, "clawback")
	assert.ErrorIs(t, err, credits.ErrInsufficientBalance)
}
