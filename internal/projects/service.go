// Package projects manages an organization's projects and their monthly
// credit caps.
package projects

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
	"gorm.io/gorm"
)

var (
	ErrNotFound = apperr.NotFound("project not found")
	ErrInactive = apperr.Conflict("project is inactive")
)

type Input struct {
	Name        *string
	Description *string
}

// CapView is a project's cap for the current month.
type CapView struct {
	ProjectID     uuid.UUID `json:"project_id"`
	MonthKey      string    `json:"month_key"`
	MonthlyCap    *int64    `json:"monthly_cap"`
	UsedThisMonth int64     `json:"used_this_month"`
	Remaining     *int64    `json:"remaining"`
}

type Service struct {
	tx    *database.TxManager
	gate  *authz.Gate
	caps  *credits.CapTracker
	audit *audit.Recorder
	log   *slog.Logger
}

func NewService(tx *database.TxManager, gate *authz.Gate, caps *credits.CapTracker, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{tx: tx, gate: gate, caps: caps, audit: rec, log: log}
}

// Load returns a project regardless of state. Callers gate on its
// organization.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.tx.DB(ctx).Preload("Organization").Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "project")
	}
	if p.Organization == nil {
		// Organization soft deleted.
		return nil, ErrNotFound
	}
	return &p, nil
}

// authorize gates on the project's organization, hiding projects of
// organizations the caller does not belong to.
func (s *Service) authorize(ctx context.Context, caller authz.Caller, id uuid.UUID, action authz.Action) (*models.Project, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, caller, p.OrganizationID, action); err != nil {
		if errors.Is(err, authz.ErrNotMember) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListActive returns the organization's active projects.
func (s *Service) ListActive(ctx context.Context, caller authz.Caller, orgID uuid.UUID) ([]models.Project, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionProjectsRead); err != nil {
		return nil, err
	}

	var out []models.Project
	err := s.tx.DB(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, database.TranslateError(err, "projects")
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, caller authz.Caller, id uuid.UUID) (*models.Project, error) {
	return s.authorize(ctx, caller, id, authz.ActionProjectsRead)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 200 {
		return "", apperr.Validation("invalid project", map[string]string{"name": "must be 1 to 200 characters"})
	}
	return name, nil
}

func (s *Service) Create(ctx context.Context, caller authz.Caller, orgID uuid.UUID, in Input) (*models.Project, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionProjectsManage); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, apperr.Validation("invalid project", map[string]string{"name": "required"})
	}
	name, err := cleanName(*in.Name)
	if err != nil {
		return nil, err
	}

	p := &models.Project{
		OrganizationID: orgID,
		Name:           name,
		IsActive:       true,
		CreatedBy:      &caller.UserID,
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tx.DB(ctx).Create(p).Error; err != nil {
			return database.TranslateError(err, "project")
		}
		return s.record(ctx, caller, p, audit.ActionProjectCreate, map[string]any{"name": p.Name})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project created", "project_id", p.ID, "organization_id", orgID)
	return p, nil
}

func (s *Service) Update(ctx context.Context, caller authz.Caller, id uuid.UUID, in Input) (*models.Project, error) {
	p, err := s.authorize(ctx, caller, id, authz.ActionProjectsManage)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		name, err := cleanName(*in.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if len(updates) == 0 {
		return p, nil
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tx.DB(ctx).Model(&models.Project{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			return database.TranslateError(err, "project")
		}
		return s.record(ctx, caller, p, audit.ActionProjectUpdate, updates)
	})
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, id)
}

// Deactivate clears is_active. Projects are never hard deleted, so jobs and
// ledger entries keep their reference.
func (s *Service) Deactivate(ctx context.Context, caller authz.Caller, id uuid.UUID) error {
	p, err := s.authorize(ctx, caller, id, authz.ActionProjectsManage)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return nil
	}

	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tx.DB(ctx).Model(&models.Project{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
			return database.TranslateError(err, "project")
		}
		return s.record(ctx, caller, p, audit.ActionProjectDeactivate, nil)
	})
}

func toCapView(l *models.ProjectCreditLimit) *CapView {
	v := &CapView{
		ProjectID:     l.ProjectID,
		MonthKey:      l.MonthKey,
		MonthlyCap:    l.MonthlyCap,
		UsedThisMonth: l.UsedThisMonth,
	}
	if l.MonthlyCap != nil {
		left := l.Remaining()
		v.Remaining = &left
	}
	return v
}

func (s *Service) GetCap(ctx context.Context, caller authz.Caller, id uuid.UUID) (*CapView, error) {
	if _, err := s.authorize(ctx, caller, id, authz.ActionProjectsRead); err != nil {
		return nil, err
	}
	limit, err := s.caps.Current(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCapView(limit), nil
}

// SetCap sets or, with nil, removes the monthly ceiling.
func (s *Service) SetCap(ctx context.Context, caller authz.Caller, id uuid.UUID, monthlyCap *int64) (*CapView, error) {
	p, err := s.authorize(ctx, caller, id, authz.ActionProjectsManage)
	if err != nil {
		return nil, err
	}

	var limit *models.ProjectCreditLimit
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if limit, err = s.caps.SetCap(ctx, id, monthlyCap); err != nil {
			return err
		}
		return s.record(ctx, caller, p, audit.ActionProjectCap, map[string]any{"monthly_cap": monthlyCap, "month_key": limit.MonthKey})
	})
	if err != nil {
		return nil, err
	}
	return toCapView(limit), nil
}

func (s *Service) record(ctx context.Context, caller authz.Caller, p *models.Project, action string, meta map[string]any) error {
	return s.audit.Record(ctx, audit.Event{
		OrganizationID: &p.OrganizationID,
		UserID:         &caller.UserID,
		Action:         action,
		EntityType:     "project",
		EntityID:       &p.ID,
		Metadata:       meta,
	})
}
