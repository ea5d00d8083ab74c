// Package prompts stores versioned prompt templates. A lineage is the chain
// of versions sharing a LineageID; rows are never rewritten except for the
// publish flag, and at most one version per lineage is published.
package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = apperr.NotFound("prompt not found")
	ErrNotPublished = apperr.Conflict("prompt version is not published")
	ErrInvalidScope = apperr.Validation("invalid prompt scope", map[string]string{"scope": "must be global or organization"})
)

var textPolicy = bluemonday.StrictPolicy()

// sanitize strips markup from display fields. Content is kept verbatim: it
// is sent to the provider, never rendered.
func sanitize(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

type CreateInput struct {
	Scope          models.PromptScope
	OrganizationID *uuid.UUID
	Title          string
	Description    string
	Content        string
	Variables      json.RawMessage
	Publish        bool
}

func (in *CreateInput) validate() error {
	switch in.Scope {
	case models.PromptScopeGlobal:
		if in.OrganizationID != nil {
			return apperr.Validation("global prompts cannot belong to an organization", map[string]string{"organization_id": "must be empty for global scope"})
		}
	case models.PromptScopeOrganization:
		if in.OrganizationID == nil {
			return apperr.Validation("organization prompts need an organization", map[string]string{"organization_id": "required for organization scope"})
		}
	default:
		return ErrInvalidScope
	}

	fields := map[string]string{}
	if in.Title == "" {
		fields["title"] = "required"
	}
	if strings.TrimSpace(in.Content) == "" {
		fields["content"] = "required"
	}
	if len(in.Variables) > 0 && !json.Valid(in.Variables) {
		fields["variables"] = "must be valid JSON"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid prompt", fields)
	}
	return nil
}

// ReviseInput overrides fields of the version being revised. Publish nil
// leaves the new version as a draft.
type ReviseInput struct {
	Title       *string
	Description *string
	Content     *string
	Variables   json.RawMessage
	Publish     *bool
}

// Filter narrows List. The zero value lists the latest version of every
// live global lineage.
type Filter struct {
	Scope          models.PromptScope
	OrganizationID *uuid.UUID
	PublishedOnly  bool
	AllVersions    bool
}

type Store struct {
	tx *database.TxManager
}

func NewStore(tx *database.TxManager) *Store {
	return &Store{tx: tx}
}

// Create starts a lineage at version 1.
func (s *Store) Create(ctx context.Context, in CreateInput, by *uuid.UUID) (*models.Prompt, error) {
	in.Title = sanitize(in.Title)
	in.Description = sanitize(in.Description)
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	p := &models.Prompt{
		Base:           models.Base{ID: id},
		LineageID:      id,
		Version:        1,
		Scope:          in.Scope,
		OrganizationID: in.OrganizationID,
		Title:          in.Title,
		Description:    in.Description,
		Content:        in.Content,
		Variables:      datatypes.JSON(in.Variables),
		IsPublished:    in.Publish,
		CreatedBy:      by,
	}
	if err := s.tx.DB(ctx).Create(p).Error; err != nil {
		return nil, database.TranslateError(err, "prompt")
	}
	return p, nil
}

// Get returns one version by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	var p models.Prompt
	err := s.tx.DB(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "prompt")
	}
	return &p, nil
}

// Versions returns every version of the lineage id belongs to, oldest first.
func (s *Store) Versions(ctx context.Context, id uuid.UUID) ([]models.Prompt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var versions []models.Prompt
	err = s.tx.DB(ctx).Where("lineage_id = ?", p.LineageID).Order("version ASC").Find(&versions).Error
	if err != nil {
		return nil, database.TranslateError(err, "prompt versions")
	}
	return versions, nil
}

// lockLineage locks every live version of the lineage and returns them
// ordered by version.
func (s *Store) lockLineage(ctx context.Context, lineageID uuid.UUID) ([]models.Prompt, error) {
	var versions []models.Prompt
	err := database.ForUpdate(s.tx.DB(ctx)).
		Where("lineage_id = ?", lineageID).
		Order("version ASC").
		Find(&versions).Error
	if err != nil {
		return nil, database.TranslateError(err, "prompt versions")
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// Revise inserts version max+1 built from the version id names. Older rows,
// including any published one, are left untouched unless the new version is
// published.
func (s *Store) Revise(ctx context.Context, id uuid.UUID, in ReviseInput, by *uuid.UUID) (*models.Prompt, error) {
	var out *models.Prompt
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		base, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		versions, err := s.lockLineage(ctx, base.LineageID)
		if err != nil {
			return err
		}

		next := &models.Prompt{
			Base:           models.Base{ID: uuid.New()},
			LineageID:      base.LineageID,
			Version:        versions[len(versions)-1].Version + 1,
			Scope:          base.Scope,
			OrganizationID: base.OrganizationID,
			Title:          base.Title,
			Description:    base.Description,
			Content:        base.Content,
			Variables:      base.Variables,
			CreatedBy:      by,
		}
		if in.Title != nil {
			next.Title = sanitize(*in.Title)
		}
		if in.Description != nil {
			next.Description = sanitize(*in.Description)
		}
		if in.Content != nil {
			next.Content = *in.Content
		}
		if in.Variables != nil {
			next.Variables = datatypes.JSON(in.Variables)
		}

		check := CreateInput{
			Scope:          next.Scope,
			OrganizationID: next.OrganizationID,
			Title:          next.Title,
			Content:        next.Content,
			Variables:      json.RawMessage(next.Variables),
		}
		if err := check.validate(); err != nil {
			return err
		}

		publish := in.Publish != nil && *in.Publish
		if publish {
			if err := s.demote(ctx, base.LineageID); err != nil {
				return err
			}
			next.IsPublished = true
		}

		if err := s.tx.DB(ctx).Create(next).Error; err != nil {
			return database.TranslateError(err, "prompt")
		}
		out = next
		return nil
	})
	return out, err
}

// SetPublished flips the publish flag of one version of the lineage id
// belongs to. Publishing unpublishes every other version.
func (s *Store) SetPublished(ctx context.Context, id uuid.UUID, version int, published bool) (*models.Prompt, error) {
	var out *models.Prompt
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		base, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		versions, err := s.lockLineage(ctx, base.LineageID)
		if err != nil {
			return err
		}

		var target *models.Prompt
		for i := range versions {
			if versions[i].Version == version {
				target = &versions[i]
				break
			}
		}
		if target == nil {
			return apperr.NotFound("prompt version not found")
		}

		db := s.tx.DB(ctx)
		if published {
			if err := s.demote(ctx, base.LineageID); err != nil {
				return err
			}
		}
		if err := db.Model(&models.Prompt{}).Where("id = ?", target.ID).Update("is_published", published).Error; err != nil {
			return database.TranslateError(err, "prompt")
		}
		target.IsPublished = published
		out = target
		return nil
	})
	return out, err
}

func (s *Store) demote(ctx context.Context, lineageID uuid.UUID) error {
	err := s.tx.DB(ctx).Model(&models.Prompt{}).
		Where("lineage_id = ? AND is_published = ?", lineageID, true).
		Update("is_published", false).Error
	return database.TranslateError(err, "prompt")
}

// List applies the filter. Unless AllVersions is set only the newest
// version of each lineage, or the published one when PublishedOnly, is
// returned.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Prompt, error) {
	if f.Scope == "" {
		f.Scope = models.PromptScopeGlobal
	}

	query := s.tx.DB(ctx).Model(&models.Prompt{}).Where("scope = ?", f.Scope)
	if f.Scope == models.PromptScopeOrganization {
		if f.OrganizationID == nil {
			return nil, apperr.Validation("organization is required", map[string]string{"organization_id": "required"})
		}
		query = query.Where("organization_id = ?", *f.OrganizationID)
	}
	if f.PublishedOnly {
		query = query.Where("is_published = ?", true)
	} else if !f.AllVersions {
		query = query.Where("version = (SELECT MAX(p2.version) FROM prompts p2 WHERE p2.lineage_id = prompts.lineage_id AND p2.deleted_at IS NULL)")
	}

	var out []models.Prompt
	if err := query.Order("title ASC").Order("version DESC").Find(&out).Error; err != nil {
		return nil, database.TranslateError(err, "prompts")
	}
	return out, nil
}

// Selectable lists the published templates an organization's members can
// start a job from: global ones plus the organization's own.
func (s *Store) Selectable(ctx context.Context, orgID *uuid.UUID) ([]models.Prompt, error) {
	query := s.tx.DB(ctx).Where("is_published = ?", true)
	if orgID != nil {
		query = query.Where("scope = ? OR (scope = ? AND organization_id = ?)",
			models.PromptScopeGlobal, models.PromptScopeOrganization, *orgID)
	} else {
		query = query.Where("scope = ?", models.PromptScopeGlobal)
	}

	var out []models.Prompt
	if err := query.Order("title ASC").Find(&out).Error; err != nil {
		return nil, database.TranslateError(err, "prompts")
	}
	return out, nil
}

// Delete soft deletes the whole lineage. Jobs keep their pinned text.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		err = s.tx.DB(ctx).Where("lineage_id = ?", p.LineageID).Delete(&models.Prompt{}).Error
		return database.TranslateError(err, "prompt")
	})
}

// ResolvePinned returns the version a new job for orgID may pin: it must be
// published and either global or owned by orgID.
func (s *Store) ResolvePinned(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Prompt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Scope == models.PromptScopeOrganization && (p.OrganizationID == nil || *p.OrganizationID != orgID) {
		return nil, ErrNotFound
	}
	if !p.IsPublished {
		return nil, ErrNotPublished
	}
	return p, nil
}
