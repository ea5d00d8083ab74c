package models

import (
	"github.com/google/uuid"
)

const (
	WebhookOutcomeApplied = "applied"
	WebhookOutcomeIgnored = "ignored"
)

// WebhookEvent records one provider delivery. The payload is sealed at rest.
type WebhookEvent struct {
	Record
	Provider      string     `gorm:"not null;uniqueIndex:idx_webhook_provider_event,priority:1" json:"provider"`
	EventID       string     `gorm:"not null;uniqueIndex:idx_webhook_provider_event,priority:2" json:"event_id"`
	VideoJobID    *uuid.UUID `gorm:"type:uuid;index" json:"video_job_id,omitempty"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome"`
	SealedPayload []byte     `json:"-"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
