package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VideoStatus string

const (
	VideoQueued     VideoStatus = "queued"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
	VideoCanceled   VideoStatus = "canceled"
)

func (s VideoStatus) IsTerminal() bool {
	return s == VideoCompleted || s == VideoFailed || s == VideoCanceled
}

func (s VideoStatus) Valid() bool {
	switch s {
	case VideoQueued, VideoProcessing, VideoCompleted, VideoFailed, VideoCanceled:
		return true
	}
	return false
}

type VideoJob struct {
	Base
	OrganizationID       uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_video_idempotency,priority:1" json:"organization_id"`
	ProjectID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	UserID               *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	PromptID             *uuid.UUID     `gorm:"type:uuid" json:"prompt_id,omitempty"`
	PromptVersion        *int           `json:"prompt_version,omitempty"`
	PromptTextFinal      string         `gorm:"type:text;not null" json:"prompt_text_final"`
	Parameters           datatypes.JSON `json:"parameters"`
	Status               VideoStatus    `gorm:"not null;default:'queued';index" json:"status"`
	CostCredits          int64          `gorm:"not null" json:"cost_credits"`
	CapMonthKey          string         `gorm:"size:7" json:"cap_month_key"`
	Provider             string         `json:"provider,omitempty"`
	ProviderJobID        *string        `json:"provider_job_id,omitempty"`
	VideoURL             *string        `json:"video_url,omitempty"`
	ThumbnailURL         *string        `json:"thumbnail_url,omitempty"`
	StorageVideoPath     *string        `json:"storage_video_path,omitempty"`
	StorageThumbnailPath *string        `json:"storage_thumbnail_path,omitempty"`
	ErrorMessage         *string        `json:"error_message,omitempty"`
	Metadata             datatypes.JSON `json:"metadata,omitempty"`
	IdempotencyKey       *string        `gorm:"uniqueIndex:idx_video_idempotency,priority:2" json:"-"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (VideoJob) TableName() string {
	return "video_jobs"
}
