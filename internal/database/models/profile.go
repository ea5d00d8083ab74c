package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformRole is an identity level role, independent of any organization.
type PlatformRole string

const (
	PlatformRoleNone       PlatformRole = ""
	PlatformRoleSuperadmin PlatformRole = "superadmin"
)

const (
	DefaultProfileName     = "Usuario"
	DefaultProfileTimezone = "UTC"
)

type Profile struct {
	UserID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"user_id"`
	Email                 string       `gorm:"index" json:"email"`
	FullName              string       `gorm:"not null" json:"full_name"`
	AvatarURL             *string      `json:"avatar_url"`
	Timezone              string       `gorm:"not null;default:'UTC'" json:"timezone"`
	PlatformRole          PlatformRole `gorm:"not null;default:''" json:"platform_role,omitempty"`
	DefaultOrganizationID *uuid.UUID   `gorm:"type:uuid" json:"default_organization_id"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
