package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const monthKeyLayout = "2006-01"

// MonthKey returns the UTC calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// MonthRange returns the half-open UTC interval covered by a month key.
func MonthRange(key string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(monthKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid month key", map[string]string{"month": "must be YYYY-MM"})
	}
	return start, start.AddDate(0, 1, 0), nil
}

// CapTracker enforces per-project monthly spending ceilings. Rollover is by
// key: the first use in a new month creates a fresh row with nothing used.
type CapTracker struct {
	tx  *database.TxManager
	now func() time.Time
}

func NewCapTracker(tx *database.TxManager) *CapTracker {
	return &CapTracker{tx: tx, now: time.Now}
}

// WithClock replaces the clock, for tests around month boundaries.
func (c *CapTracker) WithClock(now func() time.Time) *CapTracker {
	c.now = now
	return c
}

// Reserve counts amount against the project's current month and returns the
// month key it was charged to. It fails with ErrCapExceeded when the cap
// would be passed. Call it inside the transaction that posts the debit.
func (c *CapTracker) Reserve(ctx context.Context, projectID uuid.UUID, amount int64) (string, error) {
	if amount <= 0 {
		return "", apperr.Validation("reservation must be positive", nil)
	}

	key := MonthKey(c.now())
	err := c.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		limit, err := c.lockMonth(ctx, projectID, key)
		if err != nil {
			return err
		}

		if limit.MonthlyCap != nil && limit.UsedThisMonth+amount > *limit.MonthlyCap {
			return ErrCapExceeded
		}

		return c.setUsed(ctx, limit.ID, limit.UsedThisMonth+amount)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Release gives amount back to the month it was reserved in. Usage never
// drops below zero.
func (c *CapTracker) Release(ctx context.Context, projectID uuid.UUID, monthKey string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if monthKey == "" {
		monthKey = MonthKey(c.now())
	}

	return c.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var limit models.ProjectCreditLimit
		err := database.ForUpdate(c.tx.DB(ctx)).
			Where("project_id = ? AND month_key = ?", projectID, monthKey).
			Take(&limit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return database.TranslateError(err, "project credit limit")
		}

		used := limit.UsedThisMonth - amount
		if used < 0 {
			used = 0
		}
		return c.setUsed(ctx, limit.ID, used)
	})
}

// SetCap sets the current month's ceiling. A nil cap removes it. Later
// months inherit whatever the latest row carries.
func (c *CapTracker) SetCap(ctx context.Context, projectID uuid.UUID, monthlyCap *int64) (*models.ProjectCreditLimit, error) {
	if monthlyCap != nil && *monthlyCap < 0 {
		return nil, apperr.Validation("monthly cap cannot be negative", map[string]string{"monthly_cap": "must be >= 0"})
	}

	var out *models.ProjectCreditLimit
	err := c.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		limit, err := c.lockMonth(ctx, projectID, MonthKey(c.now()))
		if err != nil {
			return err
		}
		err = c.tx.DB(ctx).Model(&models.ProjectCreditLimit{}).
			Where("id = ?", limit.ID).
			Updates(map[string]any{"monthly_cap": monthlyCap, "updated_at": database.NowUTC()}).Error
		if err != nil {
			return database.TranslateError(err, "project credit limit")
		}
		limit.MonthlyCap = monthlyCap
		out = limit
		return nil
	})
	return out, err
}

// Current returns the current month's row without creating it. A project
// that has not spent yet this month reports the cap it would inherit.
func (c *CapTracker) Current(ctx context.Context, projectID uuid.UUID) (*models.ProjectCreditLimit, error) {
	key := MonthKey(c.now())
	db := c.tx.DB(ctx)

	var limit models.ProjectCreditLimit
	err := db.Where("project_id = ? AND month_key = ?", projectID, key).Take(&limit).Error
	if err == nil {
		return &limit, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.TranslateError(err, "project credit limit")
	}

	inherited, err := c.latestCap(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &models.ProjectCreditLimit{ProjectID: projectID, MonthKey: key, MonthlyCap: inherited}, nil
}

// lockMonth selects the project's row for key FOR UPDATE, creating it with
// the inherited cap on first use.
func (c *CapTracker) lockMonth(ctx context.Context, projectID uuid.UUID, key string) (*models.ProjectCreditLimit, error) {
	db := c.tx.DB(ctx)

	var limit models.ProjectCreditLimit
	err := database.ForUpdate(db).Where("project_id = ? AND month_key = ?", projectID, key).Take(&limit).Error
	if err == nil {
		return &limit, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.TranslateError(err, "project credit limit")
	}

	inherited, err := c.latestCap(ctx, projectID)
	if err != nil {
		return nil, err
	}

	limit = models.ProjectCreditLimit{ProjectID: projectID, MonthKey: key, MonthlyCap: inherited}
	// A concurrent first use may have inserted the row already.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&limit).Error; err != nil {
		return nil, database.TranslateError(err, "project credit limit")
	}
	if err := database.ForUpdate(db).Where("project_id = ? AND month_key = ?", projectID, key).Take(&limit).Error; err != nil {
		return nil, database.TranslateError(err, "project credit limit")
	}
	return &limit, nil
}

func (c *CapTracker) latestCap(ctx context.Context, projectID uuid.UUID) (*int64, error) {
	var prev models.ProjectCreditLimit
	err := c.tx.DB(ctx).Where("project_id = ?", projectID).Order("month_key DESC").Take(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.TranslateError(err, "project credit limit")
	}
	return prev.MonthlyCap, nil
}

func (c *CapTracker) setUsed(ctx context.Context, id uuid.UUID, used int64) error {
	err := c.tx.DB(ctx).Model(&models.ProjectCreditLimit{}).
		Where("id = ?", id).
		Updates(map[string]any{"used_this_month": used, "updated_at": database.NowUTC()}).Error
	return database.TranslateError(err, "project credit limit")
}
