package credits

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/settings"
)

// Summary is the credits dashboard of one organization.
type Summary struct {
	OrganizationID  uuid.UUID            `json:"organization_id"`
	Balance         int64                `json:"balance"`
	CreditsPerVideo int64                `json:"credits_per_video"`
	MonthKey        string               `json:"month_key"`
	UsedThisMonth   int64                `json:"used_this_month"`
	Recent          []models.LedgerEntry `json:"recent_transactions"`
	Projects        []ProjectUsage       `json:"projects"`
}

// Service is the caller facing side of the ledger: analytics for members
// and manual movements for privileged callers.
type Service struct {
	ledger   *Ledger
	caps     *CapTracker
	settings *settings.Service
	gate     *authz.Gate
	tx       *database.TxManager
	audit    *audit.Recorder
	log      *slog.Logger
}

func NewService(ledger *Ledger, caps *CapTracker, st *settings.Service, gate *authz.Gate, tx *database.TxManager, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{ledger: ledger, caps: caps, settings: st, gate: gate, tx: tx, audit: rec, log: log}
}

// Summary returns balance, cost per video, this month's usage and the most
// recent entries.
func (s *Service) Summary(ctx context.Context, caller authz.Caller, orgID uuid.UUID, recent int) (*Summary, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionCreditsRead); err != nil {
		return nil, err
	}
	if recent <= 0 {
		recent = DefaultListLimit
	}

	balance, err := s.ledger.Balance(ctx, orgID)
	if err != nil {
		return nil, err
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	month := MonthKey(time.Now())
	used, err := s.ledger.MonthUsage(ctx, orgID, month)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.ledger.List(ctx, orgID, ListFilter{Limit: recent})
	if err != nil {
		return nil, err
	}
	usage, err := s.caps.ProjectUsage(ctx, orgID, month)
	if err != nil {
		return nil, err
	}

	return &Summary{
		OrganizationID:  orgID,
		Balance:         balance,
		CreditsPerVideo: st.CreditsPerVideo,
		MonthKey:        month,
		UsedThisMonth:   used,
		Recent:          entries,
		Projects:        usage,
	}, nil
}

// Ledger pages through the organization's entries.
func (s *Service) Ledger(ctx context.Context, caller authz.Caller, orgID uuid.UUID, f ListFilter) ([]models.LedgerEntry, int64, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionCreditsRead); err != nil {
		return nil, 0, err
	}
	return s.ledger.List(ctx, orgID, f)
}

// Adjust posts a signed manual correction. It needs credits:adjust, which
// only the superadmin membership role holds, or the platform role.
func (s *Service) Adjust(ctx context.Context, caller authz.Caller, orgID uuid.UUID, delta int64, reason string, projectID *uuid.UUID) (*models.LedgerEntry, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionCreditsAdjust); err != nil {
		return nil, err
	}
	return s.post(ctx, caller, Entry{
		OrganizationID: orgID,
		ProjectID:      projectID,
		UserID:         &caller.UserID,
		Delta:          delta,
		Source:         models.SourceAdjustment,
		Reason:         reason,
	}, audit.ActionCreditsAdjust)
}

// Allocate is the platform operator's top up or correction. Source must be
// allocation or adjustment.
func (s *Service) Allocate(ctx context.Context, caller authz.Caller, orgID uuid.UUID, source models.LedgerSource, delta int64, reason string) (*models.LedgerEntry, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}
	if source != models.SourceAllocation && source != models.SourceAdjustment {
		return nil, apperr.Validation("invalid source", map[string]string{"source": "must be allocation or adjustment"})
	}

	action := audit.ActionCreditsAllocate
	if source == models.SourceAdjustment {
		action = audit.ActionCreditsAdjust
	}
	return s.post(ctx, caller, Entry{
		OrganizationID: orgID,
		UserID:         &caller.UserID,
		Delta:          delta,
		Source:         source,
		Reason:         reason,
	}, action)
}

func (s *Service) post(ctx context.Context, caller authz.Caller, e Entry, action string) (*models.LedgerEntry, error) {
	var posted *models.LedgerEntry
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if posted, err = s.ledger.Apply(ctx, e); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Event{
			OrganizationID: &e.OrganizationID,
			UserID:         e.UserID,
			Action:         action,
			EntityType:     "ledger_entry",
			EntityID:       &posted.ID,
			Metadata:       map[string]any{"delta": e.Delta, "source": e.Source, "reason": e.Reason},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("credits posted",
		"organization_id", e.OrganizationID,
		"source", e.Source,
		"delta", e.Delta,
		"balance_after", posted.BalanceAfter,
		"user_id", caller.UserID,
	)
	return posted, nil
}
