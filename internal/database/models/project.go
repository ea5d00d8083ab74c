package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is never hard deleted; deactivation clears IsActive.
type Project struct {
	Base
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string     `gorm:"not null" json:"name"`
	Description    string     `json:"description"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedBy      *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectCreditLimit tracks one project's spend for one calendar month.
// A nil MonthlyCap means the project has no ceiling.
type ProjectCreditLimit struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_project_month" json:"project_id"`
	MonthKey      string    `gorm:"size:7;not null;uniqueIndex:idx_project_month" json:"month_key"`
	MonthlyCap    *int64    `json:"monthly_cap"`
	UsedThisMonth int64     `gorm:"not null;default:0" json:"used_this_month"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ProjectCreditLimit) TableName() string {
	return "project_credit_limits"
}

func (l *ProjectCreditLimit) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Remaining returns the credits left this month, or -1 when uncapped.
func (l *ProjectCreditLimit) Remaining() int64 {
	if l.MonthlyCap == nil {
		return -1
	}
	if left := *l.MonthlyCap - l.UsedThisMonth; left > 0 {
		return left
	}
	return 0
}
