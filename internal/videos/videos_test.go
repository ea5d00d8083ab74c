package videos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/projects"
	"github.com/hugh/ia-marketing/internal/prompts"
	"github.com/hugh/ia-marketing/internal/settings"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/hugh/ia-marketing/internal/videos"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tc      *testutil.TestSetup
	svc     *videos.Service
	ledger  *credits.Ledger
	project *models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)

	policy, err := authz.NewPolicy()
	require.NoError(t, err)
	log := testutil.Logger()
	rec := audit.NewRecorder(tc.Tx)
	gate := authz.NewGate(membership.NewStore(tc.Tx), policy)
	ledger := credits.NewLedger(tc.Tx, log)
	caps := credits.NewCapTracker(tc.Tx)

	svc := videos.NewService(
		tc.Tx,
		gate,
		ledger,
		caps,
		projects.NewService(tc.Tx, gate, caps, rec, log),
		prompts.NewStore(tc.Tx),
		settings.NewService(tc.Tx, rec, log),
		rec,
		log,
	)

	return &fixture{
		tc:      tc,
		svc:     svc,
		ledger:  ledger,
		project: testutil.CreateTestProject(t, tc.DB, tc.Org.ID),
	}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), f.tc.Org.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) capUsed(t *testing.T) int64 {
	t.Helper()
	var limit models.ProjectCreditLimit
	require.NoError(t, f.tc.DB.Where("project_id = ?", f.project.ID).Order("month_key DESC").Take(&limit).Error)
	return limit.UsedThisMonth
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.tc.DB.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (f *fixture) input() videos.CreateInput {
	return videos.CreateInput{
		ProjectID:  f.project.ID,
		PromptText: "A sunrise over the harbor, product in foreground",
	}
}

func callerOf(p *models.Profile) authz.Caller {
	return authz.Caller{UserID: p.UserID, Email: p.Email, PlatformRole: p.PlatformRole}
}

func strPtr(s string) *string { return &s }

type failingDispatcher struct{ calls int }

func (d *failingDispatcher) EnqueueDispatch(context.Context, uuid.UUID) error {
	d.calls++
	return errors.New("redis unavailable")
}

type recordingDispatcher struct{ jobs []uuid.UUID }

func (d *recordingDispatcher) EnqueueDispatch(_ context.Context, id uuid.UUID) error {
	d.jobs = append(d.jobs, id)
	return nil
}

type prefixSigner struct{}

func (prefixSigner) SignedURL(_ context.Context, raw string) (string, error) {
	return "https://signed.example.com/?src=" + raw, nil
}
