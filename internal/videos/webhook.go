package videos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/gorm/clause"
)

// Sealer encrypts webhook payloads before they are stored.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
}

// Callback is the provider's webhook body.
type Callback struct {
	EventID      string             `json:"event_id"`
	JobID        uuid.UUID          `json:"job_id"`
	Status       models.VideoStatus `json:"status"`
	VideoURL     *string            `json:"video_url"`
	ThumbnailURL *string            `json:"thumbnail_url"`
	ErrorMessage *string            `json:"error_message"`
	Metadata     json.RawMessage    `json:"metadata"`
}

// WebhookResult tells the provider what happened to a delivery.
type WebhookResult struct {
	EventID   string             `json:"event_id"`
	JobID     uuid.UUID          `json:"job_id"`
	Status    models.VideoStatus `json:"status"`
	Outcome   string             `json:"outcome"`
	Duplicate bool               `json:"duplicate"`
}

// WebhookProcessor records each provider delivery and applies it to its job.
// A delivery whose event id was already recorded is acknowledged without
// touching the job.
type WebhookProcessor struct {
	tx       *database.TxManager
	videos   *Service
	sealer   Sealer
	provider string
	log      *slog.Logger
}

func NewWebhookProcessor(tx *database.TxManager, videos *Service, sealer Sealer, provider string, log *slog.Logger) *WebhookProcessor {
	if provider == "" {
		provider = "default"
	}
	return &WebhookProcessor{tx: tx, videos: videos, sealer: sealer, provider: provider, log: log}
}

// ParseCallback decodes and validates a webhook body. Deliveries without an
// event id are keyed by the hash of their body.
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, apperr.Validation("malformed webhook payload", nil).Wrap(err)
	}

	fields := map[string]string{}
	if cb.JobID == uuid.Nil {
		fields["job_id"] = "required"
	}
	if !cb.Status.Valid() {
		fields["status"] = "must be queued, processing, completed, failed or canceled"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid webhook payload", fields)
	}

	cb.EventID = strings.TrimSpace(cb.EventID)
	if cb.EventID == "" {
		sum := sha256.Sum256(body)
		cb.EventID = "sha256:" + hex.EncodeToString(sum[:])
	}
	return &cb, nil
}

func (p *WebhookProcessor) Process(ctx context.Context, body []byte) (*WebhookResult, error) {
	cb, err := ParseCallback(body)
	if err != nil {
		return nil, err
	}

	sealed := body
	if p.sealer != nil {
		if sealed, err = p.sealer.Seal(body); err != nil {
			return nil, apperr.Upstream("failed to seal webhook payload", err)
		}
	}

	result := &WebhookResult{EventID: cb.EventID, JobID: cb.JobID, Status: cb.Status}
	err = p.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		event := &models.WebhookEvent{
			Provider:      p.provider,
			EventID:       cb.EventID,
			VideoJobID:    &cb.JobID,
			Status:        string(cb.Status),
			Outcome:       models.WebhookOutcomeIgnored,
			SealedPayload: sealed,
		}
		res := p.tx.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
		if res.Error != nil {
			return database.TranslateError(res.Error, "webhook event")
		}
		if res.RowsAffected == 0 {
			result.Duplicate = true
			result.Outcome = models.WebhookOutcomeIgnored
			return nil
		}

		_, applied, err := p.videos.ApplyUpdate(ctx, Update{
			JobID:        cb.JobID,
			Status:       cb.Status,
			VideoURL:     cb.VideoURL,
			ThumbnailURL: cb.ThumbnailURL,
			ErrorMessage: cb.ErrorMessage,
			Metadata:     cb.Metadata,
		})
		if err != nil {
			return err
		}

		result.Outcome = models.WebhookOutcomeIgnored
		if applied {
			result.Outcome = models.WebhookOutcomeApplied
			err := p.tx.DB(ctx).Model(&models.WebhookEvent{}).
				Where("id = ?", event.ID).
				Update("outcome", models.WebhookOutcomeApplied).Error
			if err != nil {
				return database.TranslateError(err, "webhook event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("webhook processed",
		"provider", p.provider,
		"event_id", cb.EventID,
		"job_id", cb.JobID,
		"status", cb.Status,
		"outcome", result.Outcome,
		"duplicate", result.Duplicate,
	)
	return result, nil
}
