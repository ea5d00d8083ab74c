package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GlobalSetting is one key of the platform settings record.
type GlobalSetting struct {
	Key       string         `gorm:"primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
	UpdatedBy *uuid.UUID     `gorm:"type:uuid" json:"updated_by,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (GlobalSetting) TableName() string {
	return "global_settings"
}
