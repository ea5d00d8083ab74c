package organizations

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/gorm"
)

func (s *Service) ListMembers(ctx context.Context, caller authz.Caller, orgID uuid.UUID) ([]models.Membership, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, orgID); err != nil {
		return nil, err
	}
	return s.members.List(ctx, orgID)
}

// resolveUser finds the profile a MemberRef points at.
func (s *Service) resolveUser(ctx context.Context, ref MemberRef) (uuid.UUID, error) {
	db := s.tx.DB(ctx)
	var profile models.Profile
	var err error
	switch {
	case ref.UserID != nil:
		err = db.Where("user_id = ?", *ref.UserID).Take(&profile).Error
	case strings.TrimSpace(ref.Email) != "":
		err = db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(ref.Email))).Take(&profile).Error
	default:
		return uuid.Nil, apperr.Validation("user_id or email is required", map[string]string{"user_id": "required when email is empty"})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrNoProfile
	}
	if err != nil {
		return uuid.Nil, database.TranslateError(err, "profile")
	}
	return profile.UserID, nil
}

// AddMember grants role in the organization and returns the membership with
// the member's profile.
func (s *Service) AddMember(ctx context.Context, caller authz.Caller, orgID uuid.UUID, ref MemberRef, role models.Role) (*models.Membership, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}

	var m *models.Membership
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.load(ctx, orgID); err != nil {
			return err
		}
		userID, err := s.resolveUser(ctx, ref)
		if err != nil {
			return err
		}
		if m, err = s.members.Add(ctx, orgID, userID, role); err != nil {
			return err
		}
		return s.record(ctx, caller, orgID, audit.ActionMemberAdd, "membership", &userID, map[string]any{"role": role})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member added", "organization_id", orgID, "user_id", m.UserID, "role", role)
	return m, nil
}

func (s *Service) UpdateMember(ctx context.Context, caller authz.Caller, orgID, userID uuid.UUID, role models.Role) (*models.Membership, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, err
	}

	var m *models.Membership
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.members.UpdateRole(ctx, orgID, userID, role); err != nil {
			return err
		}
		return s.record(ctx, caller, orgID, audit.ActionMemberUpdate, "membership", &userID, map[string]any{"role": role})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember also clears the user's default organization when it pointed
// here.
func (s *Service) RemoveMember(ctx context.Context, caller authz.Caller, orgID, userID uuid.UUID) error {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return err
	}

	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.members.Remove(ctx, orgID, userID); err != nil {
			return err
		}
		err := s.tx.DB(ctx).Model(&models.Profile{}).
			Where("user_id = ? AND default_organization_id = ?", userID, orgID).
			Update("default_organization_id", nil).Error
		if err != nil {
			return database.TranslateError(err, "profile")
		}
		return s.record(ctx, caller, orgID, audit.ActionMemberRemove, "membership", &userID, nil)
	})
}

// AuditLogs returns the organization's audit trail.
func (s *Service) AuditLogs(ctx context.Context, caller authz.Caller, orgID uuid.UUID, limit, offset int) ([]models.AuditLog, int64, error) {
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return nil, 0, err
	}
	return s.audit.List(ctx, orgID, limit, offset)
}
