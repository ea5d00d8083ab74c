package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditLog struct {
	Record
	OrganizationID *uuid.UUID     `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	UserID         *uuid.UUID     `gorm:"type:uuid" json:"user_id,omitempty"`
	Action         string         `gorm:"not null" json:"action"`
	EntityType     string         `gorm:"not null" json:"entity_type"`
	EntityID       *uuid.UUID     `gorm:"type:uuid" json:"entity_id,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
