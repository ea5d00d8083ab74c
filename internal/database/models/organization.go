package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

type OrganizationStatus string

const (
	OrganizationActive    OrganizationStatus = "active"
	OrganizationSuspended OrganizationStatus = "suspended"
	OrganizationInactive  OrganizationStatus = "inactive"
)

type Organization struct {
	Base
	Name        string             `gorm:"not null" json:"name"`
	Description string             `json:"description"`
	Plan        Plan               `gorm:"not null;default:'free'" json:"plan"`
	Status      OrganizationStatus `gorm:"not null;default:'active'" json:"status"`

	Memberships []Membership `gorm:"foreignKey:OrganizationID" json:"-"`
	Projects    []Project    `gorm:"foreignKey:OrganizationID" json:"-"`
	Wallet      *Wallet      `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

func (o *Organization) IsActive() bool {
	return o.Status == OrganizationActive
}

// Role is a per-organization membership role. Checks against it are exact:
// superadmin does not imply admin unless a policy lists both.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// Membership maps (organization, user) to exactly one role.
type Membership struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	Role           Role      `gorm:"not null;default:'member'" json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Profile      *Profile      `gorm:"foreignKey:UserID;references:UserID" json:"profile,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}
