// Package profiles manages user profiles and builds the caller's context.
package profiles

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // timezone validation must not depend on the host's zoneinfo

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/organizations"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = apperr.NotFound("profile not found")

// OrganizationContext is one of the caller's organizations with the role
// they hold there.
type OrganizationContext struct {
	organizations.Summary
	UserRole models.Role `json:"user_role"`
}

// UserContext is everything a client needs after sign in.
type UserContext struct {
	UserID              uuid.UUID             `json:"user_id"`
	Email               string                `json:"email"`
	Profile             *models.Profile       `json:"profile"`
	Organizations       []OrganizationContext `json:"organizations"`
	DefaultOrganization *OrganizationContext  `json:"default_organization"`
	IsSuperadmin        bool                  `json:"is_superadmin"`
}

type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
	Timezone  *string
}

// Summarizer loads organization aggregates. organizations.Service
// implements it.
type Summarizer interface {
	Summaries(ctx context.Context, ids []uuid.UUID) ([]organizations.Summary, error)
}

type Service struct {
	tx      *database.TxManager
	members *membership.Store
	orgs    Summarizer
	audit   *audit.Recorder
	log     *slog.Logger
}

func NewService(tx *database.TxManager, members *membership.Store, orgs Summarizer, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{tx: tx, members: members, orgs: orgs, audit: rec, log: log}
}

// GetOrCreate returns the user's profile, creating the default one on first
// sight of the user.
func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID, email string) (*models.Profile, error) {
	db := s.tx.DB(ctx)

	var p models.Profile
	err := db.Where("user_id = ?", userID).Take(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.TranslateError(err, "profile")
	}

	name := email
	if name == "" {
		name = models.DefaultProfileName
	}
	p = models.Profile{
		UserID:   userID,
		Email:    email,
		FullName: name,
		Timezone: models.DefaultProfileTimezone,
	}
	// Two first requests can race here; whichever insert loses reads the winner.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, database.TranslateError(err, "profile")
	}
	if err := db.Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, database.TranslateError(err, "profile")
	}

	s.log.Info("profile created", "user_id", userID)
	return &p, nil
}

// ResolveCaller turns a verified token identity into a Caller, loading the
// platform role from the profile.
func (s *Service) ResolveCaller(ctx context.Context, userID uuid.UUID, email string) (authz.Caller, error) {
	p, err := s.GetOrCreate(ctx, userID, email)
	if err != nil {
		return authz.Caller{}, err
	}
	return authz.Caller{UserID: userID, Email: email, PlatformRole: p.PlatformRole}, nil
}

// UserContext lists the caller's organizations and their explicit default.
// A default the caller no longer belongs to is reported as null.
func (s *Service) UserContext(ctx context.Context, caller authz.Caller) (*UserContext, error) {
	if !caller.Authenticated() {
		return nil, authz.ErrUnauthenticated
	}

	profile, err := s.GetOrCreate(ctx, caller.UserID, caller.Email)
	if err != nil {
		return nil, err
	}
	memberships, err := s.members.ForUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(memberships))
	roles := make(map[uuid.UUID]models.Role, len(memberships))
	for i, m := range memberships {
		ids[i] = m.OrganizationID
		roles[m.OrganizationID] = m.Role
	}
	summaries, err := s.orgs.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &UserContext{
		UserID:        caller.UserID,
		Email:         caller.Email,
		Profile:       profile,
		Organizations: make([]OrganizationContext, len(summaries)),
		IsSuperadmin:  profile.PlatformRole == models.PlatformRoleSuperadmin,
	}
	for i, sum := range summaries {
		out.Organizations[i] = OrganizationContext{Summary: sum, UserRole: roles[sum.ID]}
		if profile.DefaultOrganizationID != nil && *profile.DefaultOrganizationID == sum.ID {
			def := out.Organizations[i]
			out.DefaultOrganization = &def
		}
	}
	return out, nil
}

func (s *Service) UpdateProfile(ctx context.Context, caller authz.Caller, in ProfileUpdate) (*models.Profile, error) {
	if !caller.Authenticated() {
		return nil, authz.ErrUnauthenticated
	}

	updates := map[string]any{}
	fields := map[string]string{}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" || len(name) > 120 {
			fields["full_name"] = "must be 1 to 120 characters"
		}
		updates["full_name"] = name
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if avatar == "" {
			updates["avatar_url"] = nil
		} else if u, err := url.Parse(avatar); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			fields["avatar_url"] = "must be an http(s) URL"
		} else {
			updates["avatar_url"] = avatar
		}
	}
	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil || *in.Timezone == "" || *in.Timezone == "Local" {
			fields["timezone"] = "must be an IANA time zone"
		}
		updates["timezone"] = *in.Timezone
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid profile", fields)
	}

	profile, err := s.GetOrCreate(ctx, caller.UserID, caller.Email)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return profile, nil
	}
	if err := s.tx.DB(ctx).Model(profile).Updates(updates).Error; err != nil {
		return nil, database.TranslateError(err, "profile")
	}
	return s.get(ctx, caller.UserID)
}

// SetDefaultOrganization stores the caller's default. The caller must be a
// member; nil clears it.
func (s *Service) SetDefaultOrganization(ctx context.Context, caller authz.Caller, orgID *uuid.UUID) (*models.Profile, error) {
	if !caller.Authenticated() {
		return nil, authz.ErrUnauthenticated
	}
	if orgID != nil {
		if _, err := s.members.Role(ctx, *orgID, caller.UserID); err != nil {
			return nil, err
		}
	}

	profile, err := s.GetOrCreate(ctx, caller.UserID, caller.Email)
	if err != nil {
		return nil, err
	}
	if err := s.tx.DB(ctx).Model(profile).Update("default_organization_id", orgID).Error; err != nil {
		return nil, database.TranslateError(err, "profile")
	}
	return s.get(ctx, caller.UserID)
}

// SetPlatformRole grants or revokes the platform role. The CLI calls it
// with a zero caller; the API requires a platform superadmin.
func (s *Service) SetPlatformRole(ctx context.Context, by *uuid.UUID, userID uuid.UUID, role models.PlatformRole) (*models.Profile, error) {
	if role != models.PlatformRoleNone && role != models.PlatformRoleSuperadmin {
		return nil, apperr.Validation("invalid platform role", map[string]string{"platform_role": "must be empty or superadmin"})
	}

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		res := s.tx.DB(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Update("platform_role", role)
		if res.Error != nil {
			return database.TranslateError(res.Error, "profile")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return s.audit.Record(ctx, audit.Event{
			UserID:     by,
			Action:     audit.ActionPlatformRole,
			EntityType: "profile",
			EntityID:   &userID,
			Metadata:   map[string]any{"platform_role": role},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("platform role changed", "user_id", userID, "platform_role", role)
	return s.get(ctx, userID)
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	err := s.tx.DB(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "profile")
	}
	return &p, nil
}

func (s *Service) get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.tx.DB(ctx).Where("user_id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "profile")
	}
	return &p, nil
}
