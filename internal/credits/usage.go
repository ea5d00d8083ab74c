package credits

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
)

// ProjectUsage is one active project's spend for a month.
type ProjectUsage struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	MonthKey    string    `json:"month_key"`
	Used        int64     `json:"used"`
	MonthlyCap  *int64    `json:"monthly_cap"`
}

// MonthUsage returns what the organization spent in the month: debits net
// of refunds, as a positive number.
func (l *Ledger) MonthUsage(ctx context.Context, orgID uuid.UUID, monthKey string) (int64, error) {
	from, to, err := MonthRange(monthKey)
	if err != nil {
		return 0, err
	}

	sums, err := l.SumBySource(ctx, Scope{OrganizationID: &orgID, From: from, To: to})
	if err != nil {
		return 0, err
	}
	used := -(sums[models.SourceDebit] + sums[models.SourceRefund])
	if used < 0 {
		used = 0
	}
	return used, nil
}

// ProjectUsage lists the organization's active projects with their cap row
// for the month. Projects without a row report zero usage.
func (c *CapTracker) ProjectUsage(ctx context.Context, orgID uuid.UUID, monthKey string) ([]ProjectUsage, error) {
	if monthKey == "" {
		monthKey = MonthKey(c.now())
	}
	if _, _, err := MonthRange(monthKey); err != nil {
		return nil, err
	}

	var rows []ProjectUsage
	err := c.tx.DB(ctx).
		Table("projects").
		Select("projects.id AS project_id, projects.name AS project_name, ? AS month_key, "+
			"COALESCE(pcl.used_this_month, 0) AS used, pcl.monthly_cap AS monthly_cap", monthKey).
		Joins("LEFT JOIN project_credit_limits pcl ON pcl.project_id = projects.id AND pcl.month_key = ?", monthKey).
		Where("projects.organization_id = ? AND projects.is_active = ? AND projects.deleted_at IS NULL", orgID, true).
		Order("projects.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, database.TranslateError(err, "project usage")
	}
	return rows, nil
}
