//go:build integration

package credits_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// startPostgres runs a throwaway postgres with the SQL migrations applied.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ia_marketing_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        database.NowUTC,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, testutil.Logger()))

	version, dirty, err := database.MigrationVersion(db)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.NotZero(t, version)

	return db
}

func TestLedger_ConcurrentDebitsSerializeOnPostgres(t *testing.T) {
	db := startPostgres(t)
	ctx := testutil.TestContext(t)
	ledger := credits.NewLedger(database.NewTxManager(db), testutil.Logger())

	org := testutil.CreateTestOrg(t, db)
	_, err := ledger.Apply(ctx, credits.Entry{
		OrganizationID: org.ID,
		Delta:          100,
		Source:         models.SourceAllocation,
		Reason:         "integration allocation",
	})
	require.NoError(t, err)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.Apply(ctx, credits.Entry{
				OrganizationID: org.ID,
				Delta:          -10,
				Source:         models.SourceDebit,
				Reason:         fmt.Sprintf("render %d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, credits.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected debit error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, rejected)
	assert.Zero(t, walletBalance(t, db, org.ID))
	assert.Zero(t, ledgerSum(t, db, org.ID))

	// balance_after must form an unbroken chain down from the allocation
	var entries []models.LedgerEntry
	require.NoError(t, db.Where("organization_id = ?", org.ID).
		Order("balance_after DESC").Find(&entries).Error)
	require.Len(t, entries, 11)
	running := int64(0)
	for _, e := range entries {
		running += e.Delta
		assert.Equal(t, running, e.BalanceAfter)
	}

	drift, err := ledger.Reconcile(ctx, org.ID)
	require.NoError(t, err)
	assert.Nil(t, drift)
}
