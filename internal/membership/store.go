package membership

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidRole = apperr.Validation("invalid membership role", map[string]string{"role": "must be member, admin or superadmin"})
	ErrExists      = apperr.Conflict("user is already a member of this organization")
	ErrNotFound    = apperr.NotFound("membership not found")
)

// Store holds organization to user role assignments.
type Store struct {
	tx *database.TxManager
}

func NewStore(tx *database.TxManager) *Store {
	return &Store{tx: tx}
}

var _ authz.RoleResolver = (*Store)(nil)

// Role returns the caller's role, or authz.ErrNotMember.
func (s *Store) Role(ctx context.Context, orgID, userID uuid.UUID) (models.Role, error) {
	var m models.Membership
	err := s.tx.DB(ctx).
		Joins("JOIN organizations ON organizations.id = memberships.organization_id AND organizations.deleted_at IS NULL").
		Where("memberships.organization_id = ? AND memberships.user_id = ?", orgID, userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", authz.ErrNotMember
	}
	if err != nil {
		return "", database.TranslateError(err, "membership")
	}
	return m.Role, nil
}

// List returns the organization's members with their profiles.
func (s *Store) List(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	var members []models.Membership
	err := s.tx.DB(ctx).
		Preload("Profile").
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, database.TranslateError(err, "memberships")
	}
	return members, nil
}

// ForUser returns the user's memberships in live organizations.
func (s *Store) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Membership, error) {
	var members []models.Membership
	err := s.tx.DB(ctx).
		Joins("JOIN organizations ON organizations.id = memberships.organization_id AND organizations.deleted_at IS NULL").
		Preload("Organization").
		Where("memberships.user_id = ?", userID).
		Order("memberships.created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, database.TranslateError(err, "memberships")
	}
	return members, nil
}

func (s *Store) Get(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.tx.DB(ctx).
		Preload("Profile").
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "membership")
	}
	return &m, nil
}

func (s *Store) Add(ctx context.Context, orgID, userID uuid.UUID, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		var count int64
		if err := db.Model(&models.Organization{}).Where("id = ?", orgID).Count(&count).Error; err != nil {
			return database.TranslateError(err, "organization")
		}
		if count == 0 {
			return apperr.NotFound("organization not found")
		}

		m := &models.Membership{OrganizationID: orgID, UserID: userID, Role: role}
		if err := db.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrExists
			}
			return database.TranslateError(err, "membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, orgID, userID)
}

func (s *Store) UpdateRole(ctx context.Context, orgID, userID uuid.UUID, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	res := s.tx.DB(ctx).Model(&models.Membership{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Update("role", role)
	if res.Error != nil {
		return nil, database.TranslateError(res.Error, "membership")
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return s.Get(ctx, orgID, userID)
}

func (s *Store) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	res := s.tx.DB(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Delete(&models.Membership{})
	if res.Error != nil {
		return database.TranslateError(res.Error, "membership")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveAll drops every membership of an organization.
func (s *Store) RemoveAll(ctx context.Context, orgID uuid.UUID) error {
	err := s.tx.DB(ctx).Where("organization_id = ?", orgID).Delete(&models.Membership{}).Error
	return database.TranslateError(err, "memberships")
}

// Count returns the number of members per organization id.
func (s *Store) Count(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	err := s.tx.DB(ctx).Model(&models.Membership{}).Where("organization_id = ?", orgID).Count(&n).Error
	return n, database.TranslateError(err, "memberships")
}
