package prompts

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
)

// Service applies access rules on top of the Store. Global prompts are
// managed by platform superadmins; organization prompts by callers allowed
// prompts:manage in that organization.
type Service struct {
	store *Store
	gate  *authz.Gate
	tx    *database.TxManager
	audit *audit.Recorder
	log   *slog.Logger
}

func NewService(store *Store, gate *authz.Gate, tx *database.TxManager, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{store: store, gate: gate, tx: tx, audit: rec, log: log}
}

func (s *Service) authorizeManage(ctx context.Context, caller authz.Caller, scope models.PromptScope, orgID *uuid.UUID) error {
	if scope == models.PromptScopeOrganization && orgID != nil {
		_, err := s.gate.Authorize(ctx, caller, *orgID, authz.ActionPromptsManage)
		return err
	}
	return authz.RequirePlatformSuperadmin(caller)
}

// authorizeView hides prompts outside the caller's reach as not found.
func (s *Service) authorizeView(ctx context.Context, caller authz.Caller, p *models.Prompt) error {
	if !caller.Authenticated() {
		return authz.ErrUnauthenticated
	}
	if caller.IsPlatformSuperadmin() {
		return nil
	}

	switch p.Scope {
	case models.PromptScopeGlobal:
		if p.IsPublished {
			return nil
		}
	case models.PromptScopeOrganization:
		if p.OrganizationID == nil {
			break
		}
		action := authz.ActionPromptsRead
		if !p.IsPublished {
			action = authz.ActionPromptsManage
		}
		if _, err := s.gate.Authorize(ctx, caller, *p.OrganizationID, action); err == nil {
			return nil
		}
	}
	return ErrNotFound
}

func (s *Service) record(ctx context.Context, caller authz.Caller, action string, p *models.Prompt, meta map[string]any) error {
	return s.audit.Record(ctx, audit.Event{
		OrganizationID: p.OrganizationID,
		UserID:         &caller.UserID,
		Action:         action,
		EntityType:     "prompt",
		EntityID:       &p.ID,
		Metadata:       meta,
	})
}

func (s *Service) Create(ctx context.Context, caller authz.Caller, in CreateInput) (*models.Prompt, error) {
	if err := s.authorizeManage(ctx, caller, in.Scope, in.OrganizationID); err != nil {
		return nil, err
	}

	var out *models.Prompt
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.store.Create(ctx, in, &caller.UserID)
		if err != nil {
			return err
		}
		out = p
		return s.record(ctx, caller, audit.ActionPromptCreate, p, map[string]any{"lineage_id": p.LineageID, "version": p.Version})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prompt created", "prompt_id", out.ID, "scope", out.Scope)
	return out, nil
}

func (s *Service) Revise(ctx context.Context, caller authz.Caller, id uuid.UUID, in ReviseInput) (*models.Prompt, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, caller, current.Scope, current.OrganizationID); err != nil {
		return nil, err
	}

	var out *models.Prompt
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.store.Revise(ctx, id, in, &caller.UserID)
		if err != nil {
			return err
		}
		out = p
		return s.record(ctx, caller, audit.ActionPromptRevise, p, map[string]any{
			"lineage_id": p.LineageID, "version": p.Version, "published": p.IsPublished,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prompt revised", "lineage_id", out.LineageID, "version", out.Version)
	return out, nil
}

func (s *Service) SetPublished(ctx context.Context, caller authz.Caller, id uuid.UUID, version int, published bool) (*models.Prompt, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, caller, current.Scope, current.OrganizationID); err != nil {
		return nil, err
	}

	var out *models.Prompt
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.store.SetPublished(ctx, id, version, published)
		if err != nil {
			return err
		}
		out = p
		return s.record(ctx, caller, audit.ActionPromptPublish, p, map[string]any{"version": version, "published": published})
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, caller authz.Caller, id uuid.UUID) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeManage(ctx, caller, current.Scope, current.OrganizationID); err != nil {
		return err
	}

	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, caller, audit.ActionPromptDelete, current, map[string]any{"lineage_id": current.LineageID})
	})
}

func (s *Service) Get(ctx context.Context, caller authz.Caller, id uuid.UUID) (*models.Prompt, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, caller, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Versions lists the lineage history. Only managers see it.
func (s *Service) Versions(ctx context.Context, caller authz.Caller, id uuid.UUID) ([]models.Prompt, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, caller, p.Scope, p.OrganizationID); err != nil {
		return nil, err
	}
	return s.store.Versions(ctx, id)
}

// ListGlobal returns the published global templates, or the newest version
// of every global lineage for platform superadmins asking for drafts.
func (s *Service) ListGlobal(ctx context.Context, caller authz.Caller, includeDrafts bool) ([]models.Prompt, error) {
	if !caller.Authenticated() {
		return nil, authz.ErrUnauthenticated
	}
	if includeDrafts {
		if err := authz.RequirePlatformSuperadmin(caller); err != nil {
			return nil, err
		}
		return s.store.List(ctx, Filter{Scope: models.PromptScopeGlobal})
	}
	return s.store.List(ctx, Filter{Scope: models.PromptScopeGlobal, PublishedOnly: true})
}

// ListForOrganization returns what members may start jobs from. With
// manage set, managers get the organization's own lineages including drafts.
func (s *Service) ListForOrganization(ctx context.Context, caller authz.Caller, orgID uuid.UUID, manage bool) ([]models.Prompt, error) {
	if manage {
		if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionPromptsManage); err != nil {
			return nil, err
		}
		return s.store.List(ctx, Filter{Scope: models.PromptScopeOrganization, OrganizationID: &orgID})
	}

	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionPromptsRead); err != nil {
		return nil, err
	}
	return s.store.Selectable(ctx, &orgID)
}
