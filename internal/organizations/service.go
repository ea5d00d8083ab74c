// Package organizations implements the platform superadmin console:
// organization lifecycle, membership administration and aggregates.
package organizations

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = apperr.NotFound("organization not found")
	ErrActiveJobs = apperr.Conflict("organization has queued or processing video jobs")
	ErrNoProfile  = apperr.NotFound("user profile not found")
)

// Summary is an organization with its list aggregates.
type Summary struct {
	models.Organization
	MembersCount  int64 `json:"members_count"`
	ProjectsCount int64 `json:"projects_count"`
	Balance       int64 `json:"balance"`
}

// Detail adds the member and active project lists.
type Detail struct {
	Summary
	Members  []models.Membership `json:"members"`
	Projects []models.Project    `json:"projects"`
}

type CreateInput struct {
	Name           string
	Description    string
	Plan           models.Plan
	Status         models.OrganizationStatus
	InitialCredits int64
}

type UpdateInput struct {
	Name        *string
	Description *string
	Plan        *models.Plan
	Status      *models.OrganizationStatus
}

type ListFilter struct {
	Search string
	Status models.OrganizationStatus
	Limit  int
	Offset int
}

// MemberRef names the user to add, by id or by profile email.
type MemberRef struct {
	UserID *uuid.UUID
	Email  string
}

type Service struct {
	tx      *database.TxManager
	members *membership.Store
	ledger  *credits.Ledger
	audit   *audit.Recorder
	log     *slog.Logger
}

func NewService(tx *database.TxManager, members *membership.Store, ledger *credits.Ledger, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{tx: tx, members: members, ledger: ledger, audit: rec, log: log}
}

func validPlan(p models.Plan) bool {
	return p == models.PlanFree || p == models.PlanPro || p == models.PlanEnterprise
}

func validStatus(s models.OrganizationStatus) bool {
	return s == models.OrganizationActive || s == models.OrganizationSuspended || s == models.OrganizationInactive
}

func (in *CreateInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Plan == "" {
		in.Plan = models.PlanFree
	}
	if in.Status == "" {
		in.Status = models.OrganizationActive
	}

	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "required"
	}
	if !validPlan(in.Plan) {
		fields["plan"] = "must be free, pro or enterprise"
	}
	if !validStatus(in.Status) {
		fields["status"] = "must be active, suspended or inactive"
	}
	if in.InitialCredits < 0 {
		fields["initial_credits"] = "cannot be negative"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid organization", fields)
	}
	return nil
}

func (s *Service) record(ctx context.Context, caller authz.Caller, orgID uuid.UUID, action, entityType string, entityID *uuid.UUID, meta map[string]any) error {
	return s.audit.Record(ctx, audit.Event{
		OrganizationID: &orgID,
		UserID:         &caller.UserID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		Metadata:       meta,
	})
}

// Create inserts the organization with an empty wallet and, when asked,
// posts the opening allocation.
func (s *Service) Create(ctx context.Context, caller authz.Caller, in CreateInput) (*Summary, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	org := &models.Organization{
		Name:        in.Name,
		Description: in.Description,
		Plan:        in.Plan,
		Status:      in.Status,
	}
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)
		if err := db.Create(org).Error; err != nil {
			return database.TranslateError(err, "organization")
		}
		if err := db.Create(&models.Wallet{OrganizationID: org.ID}).Error; err != nil {
			return database.TranslateError(err, "wallet")
		}

		if in.InitialCredits > 0 {
			_, err := s.ledger.Apply(ctx, credits.Entry{
				OrganizationID: org.ID,
				UserID:         &caller.UserID,
				Delta:          in.InitialCredits,
				Source:         models.SourceAllocation,
				Reason:         "initial allocation",
			})
			if err != nil {
				return err
			}
		}

		return s.record(ctx, caller, org.ID, audit.ActionOrganizationCreate, "organization", &org.ID, map[string]any{
			"name": org.Name, "plan": org.Plan, "initial_credits": in.InitialCredits,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created", "organization_id", org.ID, "plan", org.Plan)
	return &Summary{Organization: *org, Balance: in.InitialCredits}, nil
}

// List returns live organizations with member and project counts and
// wallet balances.
func (s *Service) List(ctx context.Context, caller authz.Caller, f ListFilter) ([]Summary, int64, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := s.tx.DB(ctx).Model(&models.Organization{})
	if f.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.TranslateError(err, "organizations")
	}

	var orgs []models.Organization
	if err := query.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&orgs).Error; err != nil {
		return nil, 0, database.TranslateError(err, "organizations")
	}

	summaries, err := s.summarize(ctx, orgs)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Summaries loads the aggregates for the given live organizations, in the
// order of ids. Unknown ids are skipped.
func (s *Service) Summaries(ctx context.Context, ids []uuid.UUID) ([]Summary, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var orgs []models.Organization
	if err := s.tx.DB(ctx).Where("id IN ?", ids).Find(&orgs).Error; err != nil {
		return nil, database.TranslateError(err, "organizations")
	}
	byID := make(map[uuid.UUID]models.Organization, len(orgs))
	for _, o := range orgs {
		byID[o.ID] = o
	}
	ordered := make([]models.Organization, 0, len(orgs))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			ordered = append(ordered, o)
		}
	}
	return s.summarize(ctx, ordered)
}

type countRow struct {
	OrganizationID uuid.UUID
	N              int64
}

func (s *Service) summarize(ctx context.Context, orgs []models.Organization) ([]Summary, error) {
	out := make([]Summary, len(orgs))
	if len(orgs) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	db := s.tx.DB(ctx)

	var memberRows, projectRows []countRow
	err := db.Model(&models.Membership{}).
		Select("organization_id, COUNT(*) AS n").
		Where("organization_id IN ?", ids).
		Group("organization_id").
		Scan(&memberRows).Error
	if err != nil {
		return nil, database.TranslateError(err, "memberships")
	}
	err = db.Model(&models.Project{}).
		Select("organization_id, COUNT(*) AS n").
		Where("organization_id IN ? AND is_active = ?", ids, true).
		Group("organization_id").
		Scan(&projectRows).Error
	if err != nil {
		return nil, database.TranslateError(err, "projects")
	}
	var wallets []models.Wallet
	if err := db.Where("organization_id IN ?", ids).Find(&wallets).Error; err != nil {
		return nil, database.TranslateError(err, "wallets")
	}

	members := make(map[uuid.UUID]int64, len(memberRows))
	for _, r := range memberRows {
		members[r.OrganizationID] = r.N
	}
	projects := make(map[uuid.UUID]int64, len(projectRows))
	for _, r := range projectRows {
		projects[r.OrganizationID] = r.N
	}
	balances := make(map[uuid.UUID]int64, len(wallets))
	for _, w := range wallets {
		balances[w.OrganizationID] = w.Balance
	}

	for i, o := range orgs {
		out[i] = Summary{
			Organization:  o,
			MembersCount:  members[o.ID],
			ProjectsCount: projects[o.ID],
			Balance:       balances[o.ID],
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := s.tx.DB(ctx).Where("id = ?", id).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "organization")
	}
	return &org, nil
}

func (s *Service) Get(ctx context.Context, caller authz.Caller, id uuid.UUID) (*Detail, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}
	org, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	summaries, err := s.summarize(ctx, []models.Organization{*org})
	if err != nil {
		return nil, err
	}
	members, err := s.members.List(ctx, id)
	if err != nil {
		return nil, err
	}
	var projects []models.Project
	err = s.tx.DB(ctx).
		Where("organization_id = ? AND is_active = ?", id, true).
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, database.TranslateError(err, "projects")
	}

	return &Detail{Summary: summaries[0], Members: members, Projects: projects}, nil
}

func (s *Service) Update(ctx context.Context, caller authz.Caller, id uuid.UUID, in UpdateInput) (*models.Organization, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	fields := map[string]string{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			fields["name"] = "cannot be empty"
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Plan != nil {
		if !validPlan(*in.Plan) {
			fields["plan"] = "must be free, pro or enterprise"
		}
		updates["plan"] = *in.Plan
	}
	if in.Status != nil {
		if !validStatus(*in.Status) {
			fields["status"] = "must be active, suspended or inactive"
		}
		updates["status"] = *in.Status
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid organization", fields)
	}

	var org *models.Organization
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if org, err = s.load(ctx, id); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := s.tx.DB(ctx).Model(org).Updates(updates).Error; err != nil {
			return database.TranslateError(err, "organization")
		}
		if org, err = s.load(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, caller, id, audit.ActionOrganizationUpdate, "organization", &id, updates)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// Delete soft deletes the organization and drops its memberships. The
// ledger, wallet, projects and jobs stay for audit. Organizations with work
// still in flight cannot be deleted.
func (s *Service) Delete(ctx context.Context, caller authz.Caller, id uuid.UUID) error {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return err
	}

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		org, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		// Job creation debits under the same lock, so no job can slip in
		// between the count and the delete.
		if err := s.ledger.LockOrganization(ctx, id); err != nil {
			return err
		}

		db := s.tx.DB(ctx)
		var inFlight int64
		err = db.Model(&models.VideoJob{}).
			Where("organization_id = ? AND status IN ?", id, []models.VideoStatus{models.VideoQueued, models.VideoProcessing}).
			Count(&inFlight).Error
		if err != nil {
			return database.TranslateError(err, "video jobs")
		}
		if inFlight > 0 {
			return ErrActiveJobs
		}

		if err := s.members.RemoveAll(ctx, id); err != nil {
			return err
		}
		if err := db.Delete(org).Error; err != nil {
			return database.TranslateError(err, "organization")
		}
		return s.record(ctx, caller, id, audit.ActionOrganizationDelete, "organization", &id, map[string]any{"name": org.Name})
	})
	if err != nil {
		return err
	}

	s.log.Info("organization deleted", "organization_id", id)
	return nil
}
