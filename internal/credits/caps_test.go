package credits_test

import (
	"context"
	"testing"
	"time"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMonthKey(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, "2026-10", credits.MonthKey(time.Date(2026, 10, 31, 18, 0, 0, 0, time.UTC)))
	// 21:00 on Oct 31 at UTC-5 is already November in UTC.
	assert.Equal(t, "2026-11", credits.MonthKey(time.Date(2026, 10, 31, 21, 0, 0, 0, loc)))

	from, to, err := credits.MonthRange("2026-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), to)

	_, _, err = credits.MonthRange("Oct 2026")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCapTracker_Reserve(t *testing.T) {
	tests := []struct {
		name     string
		cap      *int64
		used     int64
		amount   int64
		wantErr  error
		wantUsed int64
	}{
		{"fits under cap", ptr[int64](15), 0, 10, nil, 10},
		{"exactly reaches cap", ptr[int64](20), 10, 10, nil, 20},
		{"would pass cap", ptr[int64](15), 10, 10, credits.ErrCapExceeded, 10},
		{"zero cap blocks everything", ptr[int64](0), 0, 1, credits.ErrCapExceeded, 0},
		{"uncapped", nil, 500, 10, nil, 510},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			defer tc.Cleanup()
			caps := credits.NewCapTracker(tc.Tx)
			ctx := testutil.TestContext(t)
			project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)

			limit := testutil.SetTestCap(t, tc.DB, project.ID, 0, tt.used)
			require.NoError(t, tc.DB.Model(limit).Update("monthly_cap", tt.cap).Error)

			key, err := caps.Reserve(ctx, project.ID, tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, credits.MonthKey(time.Now()), key)
			}

			current, err := caps.Current(ctx, project.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, current.UsedThisMonth)
		})
	}
}

func TestCapTracker_LazyRowAndRollover(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)

	now := time.Date(2026, 9, 20, 12, 0, 0, 0, time.UTC)
	caps := credits.NewCapTracker(tc.Tx).WithClock(func() time.Time { return now })

	current, err := caps.Current(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, current.MonthlyCap)
	assert.Equal(t, int64(-1), current.Remaining())

	_, err = caps.SetCap(ctx, project.ID, ptr[int64](15))
	require.NoError(t, err)

	key, err := caps.Reserve(ctx, project.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "2026-09", key)

	now = time.Date(2026, 10, 1, 0, 0, 1, 0, time.UTC)

	current, err = caps.Current(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-10", current.MonthKey)
	assert.Equal(t, int64(0), current.UsedThisMonth)
	require.NotNil(t, current.MonthlyCap)
	assert.Equal(t, int64(15), *current.MonthlyCap)

	key, err = caps.Reserve(ctx, project.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, "2026-10", key)

	_, err = caps.Reserve(ctx, project.ID, 1)
	assert.ErrorIs(t, err, credits.ErrCapExceeded)

	// Releasing into the earlier month leaves October alone.
	require.NoError(t, caps.Release(ctx, project.ID, "2026-09", 10))

	var rows []models.ProjectCreditLimit
	require.NoError(t, tc.DB.Where("project_id = ?", project.ID).Order("month_key").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[0].UsedThisMonth)
	assert.Equal(t, int64(15), rows[1].UsedThisMonth)
}

func TestCapTracker_ReleaseFloorsAtZero(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	caps := credits.NewCapTracker(tc.Tx)
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	testutil.SetTestCap(t, tc.DB, project.ID, 15, 5)

	require.NoError(t, caps.Release(ctx, project.ID, credits.MonthKey(time.Now()), 10))

	current, err := caps.Current(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.UsedThisMonth)

	// Months never reserved in are a no-op.
	require.NoError(t, caps.Release(ctx, project.ID, "2020-01", 10))
}

func TestCapTracker_SetCapRejectsNegative(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	caps := credits.NewCapTracker(tc.Tx)
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)

	_, err := caps.SetCap(testutil.TestContext(t), project.ID, ptr[int64](-1))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

// Reserve and debit run as one unit: a failed debit leaves the cap as it was.
func TestReserveAndDebitAreAtomic(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)
	caps := credits.NewCapTracker(tc.Tx)
	ledger := credits.NewLedger(tc.Tx, testutil.Logger())
	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	testutil.SetTestCap(t, tc.DB, project.ID, 100, 0)
	testutil.FundTestWallet(t, tc.DB, tc.Org.ID, 5)

	err := tc.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := caps.Reserve(ctx, project.ID, 10); err != nil {
			return err
		}
		_, err := ledger.Apply(ctx, credits.Entry{OrganizationID: tc.Org.ID, ProjectID: &project.ID, Delta: -10, Source: models.SourceDebit})
		return err
	})
	assert.ErrorIs(t, err, credits.ErrInsufficientBalance)

	current, err := caps.Current(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.UsedThisMonth)
}

func TestCapTracker_ProjectUsage(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	caps := credits.NewCapTracker(tc.Tx)
	ctx := testutil.TestContext(t)
	capped := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	idle := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	inactive := testutil.CreateTestProject(t, tc.DB, tc.Org.ID)
	require.NoError(t, tc.DB.Model(inactive).Update("is_active", false).Error)
	testutil.SetTestCap(t, tc.DB, capped.ID, 50, 20)

	usage, err := caps.ProjectUsage(ctx, tc.Org.ID, "")
	require.NoError(t, err)
	require.Len(t, usage, 2)

	byID := map[string]credits.ProjectUsage{}
	for _, u := range usage {
		byID[u.ProjectID.String()] = u
	}
	assert.Equal(t, int64(20), byID[capped.ID.String()].Used)
	require.NotNil(t, byID[capped.ID.String()].MonthlyCap)
	assert.Equal(t, int64(50), *byID[capped.ID.String()].MonthlyCap)
	assert.Equal(t, int64(0), byID[idle.ID.String()].Used)
	assert.Nil(t, byID[idle.ID.String()].MonthlyCap)
}
