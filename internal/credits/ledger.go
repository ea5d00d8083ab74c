// Package credits keeps the append-only credit ledger, the wallet balance
// projected from it and the per-project monthly caps.
package credits

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = apperr.Conflict("insufficient credit balance")
	ErrCapExceeded         = apperr.Conflict("project monthly credit cap exceeded")
	ErrReasonRequired      = apperr.Validation("reason is required", map[string]string{"reason": "required for adjustments"})
	ErrInvalidDelta        = apperr.Validation("delta does not match source", nil)
	ErrInvalidSource       = apperr.Validation("unknown ledger source", map[string]string{"source": "must be allocation, debit, refund or adjustment"})
	ErrProjectNotFound     = apperr.NotFound("project not found")
)

// Entry describes one credit movement to post.
type Entry struct {
	OrganizationID uuid.UUID
	ProjectID      *uuid.UUID
	UserID         *uuid.UUID
	VideoJobID     *uuid.UUID
	Delta          int64
	Source         models.LedgerSource
	Reason         string
}

// Validate checks the sign rules: debits are negative, allocations and
// refunds positive, adjustments any non-zero amount with a reason.
func (e Entry) Validate() error {
	if !e.Source.Valid() {
		return ErrInvalidSource
	}
	if e.OrganizationID == uuid.Nil {
		return apperr.Validation("organization is required", map[string]string{"organization_id": "required"})
	}

	switch e.Source {
	case models.SourceDebit:
		if e.Delta >= 0 {
			return ErrInvalidDelta
		}
	case models.SourceAllocation, models.SourceRefund:
		if e.Delta <= 0 {
			return ErrInvalidDelta
		}
	case models.SourceAdjustment:
		if e.Delta == 0 {
			return ErrInvalidDelta
		}
		if strings.TrimSpace(e.Reason) == "" {
			return ErrReasonRequired
		}
	}
	return nil
}

// Ledger appends entries and keeps each organization's wallet equal to the
// sum of its deltas. The wallet row is locked for the whole append, so
// writers for one organization run one at a time.
type Ledger struct {
	tx  *database.TxManager
	log *slog.Logger
}

func NewLedger(tx *database.TxManager, log *slog.Logger) *Ledger {
	return &Ledger{tx: tx, log: log}
}

// Apply posts the entry and returns it with BalanceAfter set. A movement
// that would take the balance below zero is rejected and nothing is written.
func (l *Ledger) Apply(ctx context.Context, e Entry) (*models.LedgerEntry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var posted *models.LedgerEntry
	err := l.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		wallet, err := l.lockWallet(ctx, e.OrganizationID)
		if err != nil {
			return err
		}

		if e.ProjectID != nil {
			if err := l.checkProject(ctx, e.OrganizationID, *e.ProjectID); err != nil {
				return err
			}
		}

		balance := wallet.Balance + e.Delta
		if balance < 0 {
			return ErrInsufficientBalance
		}

		entry := &models.LedgerEntry{
			OrganizationID: e.OrganizationID,
			ProjectID:      e.ProjectID,
			UserID:         e.UserID,
			VideoJobID:     e.VideoJobID,
			Delta:          e.Delta,
			Source:         e.Source,
			Reason:         e.Reason,
			BalanceAfter:   balance,
		}
		db := l.tx.DB(ctx)
		if err := db.Create(entry).Error; err != nil {
			return database.TranslateError(err, "ledger entry")
		}
		err = db.Model(&models.Wallet{}).
			Where("organization_id = ?", e.OrganizationID).
			Updates(map[string]any{"balance": balance, "updated_at": database.NowUTC()}).Error
		if err != nil {
			return database.TranslateError(err, "wallet")
		}

		posted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("ledger entry posted",
		"organization_id", e.OrganizationID,
		"source", e.Source,
		"delta", e.Delta,
		"balance_after", posted.BalanceAfter,
	)
	return posted, nil
}

// checkProject rejects entries tagged with a project of another
// organization. Deactivated projects still take corrections.
func (l *Ledger) checkProject(ctx context.Context, orgID, projectID uuid.UUID) error {
	var count int64
	err := l.tx.DB(ctx).Model(&models.Project{}).
		Where("id = ? AND organization_id = ?", projectID, orgID).
		Count(&count).Error
	if err != nil {
		return database.TranslateError(err, "project")
	}
	if count == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// LockOrganization takes the wallet row lock that every ledger write for
// orgID also takes, and holds it until the surrounding transaction ends.
func (l *Ledger) LockOrganization(ctx context.Context, orgID uuid.UUID) error {
	if !database.InTransaction(ctx) {
		return apperr.Upstream("organization lock requires a transaction", nil)
	}
	_, err := l.lockWallet(ctx, orgID)
	return err
}

// lockWallet selects the wallet FOR UPDATE, creating it for organizations
// that predate wallets.
func (l *Ledger) lockWallet(ctx context.Context, orgID uuid.UUID) (*models.Wallet, error) {
	db := l.tx.DB(ctx)

	var wallet models.Wallet
	err := database.ForUpdate(db).Where("organization_id = ?", orgID).Take(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.TranslateError(err, "wallet")
	}

	var count int64
	if err := db.Model(&models.Organization{}).Where("id = ?", orgID).Count(&count).Error; err != nil {
		return nil, database.TranslateError(err, "organization")
	}
	if count == 0 {
		return nil, apperr.NotFound("organization not found")
	}

	var sum int64
	if err := db.Model(&models.LedgerEntry{}).
		Where("organization_id = ?", orgID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error; err != nil {
		return nil, database.TranslateError(err, "ledger")
	}

	wallet = models.Wallet{OrganizationID: orgID, Balance: sum}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error; err != nil {
		return nil, database.TranslateError(err, "wallet")
	}
	if err := database.ForUpdate(db).Where("organization_id = ?", orgID).Take(&wallet).Error; err != nil {
		return nil, database.TranslateError(err, "wallet")
	}
	return &wallet, nil
}

// Balance reads the wallet projection. Organizations without a wallet have
// a zero balance.
func (l *Ledger) Balance(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var wallet models.Wallet
	err := l.tx.DB(ctx).Where("organization_id = ?", orgID).Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, database.TranslateError(err, "wallet")
	}
	return wallet.Balance, nil
}

// ListFilter narrows a ledger listing.
type ListFilter struct {
	ProjectID *uuid.UUID
	Source    models.LedgerSource
	Limit     int
	Offset    int
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 200
)

func (f *ListFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// List returns the organization's entries newest first with the total count.
func (l *Ledger) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]models.LedgerEntry, int64, error) {
	filter.normalize()

	query := l.tx.DB(ctx).Model(&models.LedgerEntry{}).Where("organization_id = ?", orgID)
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.TranslateError(err, "ledger")
	}

	var entries []models.LedgerEntry
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, database.TranslateError(err, "ledger")
	}
	return entries, total, nil
}

// Scope selects the entries a sum runs over. OrganizationID is required;
// ProjectID narrows it to one project. Zero From/To leave that side open.
type Scope struct {
	OrganizationID *uuid.UUID
	ProjectID      *uuid.UUID
	From           time.Time
	To             time.Time
}

func (l *Ledger) scoped(ctx context.Context, scope Scope) (*gorm.DB, error) {
	query := l.tx.DB(ctx).Model(&models.LedgerEntry{})
	if scope.OrganizationID == nil {
		return nil, apperr.Validation("organization is required", map[string]string{"organization_id": "required"})
	}
	query = query.Where("organization_id = ?", *scope.OrganizationID)
	if scope.ProjectID != nil {
		query = query.Where("project_id = ?", *scope.ProjectID)
	}
	if !scope.From.IsZero() {
		query = query.Where("created_at >= ?", scope.From)
	}
	if !scope.To.IsZero() {
		query = query.Where("created_at < ?", scope.To)
	}
	return query, nil
}

// SumDebits returns the credits spent in scope as a positive number.
func (l *Ledger) SumDebits(ctx context.Context, scope Scope) (int64, error) {
	query, err := l.scoped(ctx, scope)
	if err != nil {
		return 0, err
	}

	var sum int64
	err = query.Where("source = ?", models.SourceDebit).Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error
	if err != nil {
		return 0, database.TranslateError(err, "ledger")
	}
	return -sum, nil
}

// SumBySource returns the signed total per source in scope.
func (l *Ledger) SumBySource(ctx context.Context, scope Scope) (map[models.LedgerSource]int64, error) {
	query, err := l.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Source models.LedgerSource
		Total  int64
	}
	err = query.Select("source, COALESCE(SUM(delta), 0) AS total").Group("source").Scan(&rows).Error
	if err != nil {
		return nil, database.TranslateError(err, "ledger")
	}

	sums := make(map[models.LedgerSource]int64, len(rows))
	for _, r := range rows {
		sums[r.Source] = r.Total
	}
	return sums, nil
}

// Drift is a wallet whose cached balance disagrees with its ledger.
type Drift struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	WalletBalance  int64     `json:"wallet_balance"`
	LedgerBalance  int64     `json:"ledger_balance"`
}

// Reconcile compares one wallet with its ledger under the wallet lock. It
// returns nil when they agree.
func (l *Ledger) Reconcile(ctx context.Context, orgID uuid.UUID) (*Drift, error) {
	var drift *Drift
	err := l.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		wallet, err := l.lockWallet(ctx, orgID)
		if err != nil {
			return err
		}

		var sum int64
		err = l.tx.DB(ctx).Model(&models.LedgerEntry{}).
			Where("organization_id = ?", orgID).
			Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error
		if err != nil {
			return database.TranslateError(err, "ledger")
		}

		if sum != wallet.Balance {
			drift = &Drift{OrganizationID: orgID, WalletBalance: wallet.Balance, LedgerBalance: sum}
		}
		return nil
	})
	return drift, err
}

// ReconcileAll checks every wallet and logs each drift it finds.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Drift, error) {
	var orgIDs []uuid.UUID
	if err := l.tx.DB(ctx).Model(&models.Wallet{}).Pluck("organization_id", &orgIDs).Error; err != nil {
		return nil, database.TranslateError(err, "wallets")
	}

	var drifts []Drift
	for _, id := range orgIDs {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		d, err := l.Reconcile(ctx, id)
		if err != nil {
			l.log.Error("wallet reconciliation failed", "organization_id", id, "error", err)
			continue
		}
		if d != nil {
			l.log.Warn("wallet drift detected",
				"organization_id", id,
				"wallet_balance", d.WalletBalance,
				"ledger_balance", d.LedgerBalance,
			)
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}
