package videos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/storage"
	"gorm.io/datatypes"
)

// Update is a status report for one job, usually from the provider.
type Update struct {
	JobID        uuid.UUID
	Status       models.VideoStatus
	VideoURL     *string
	ThumbnailURL *string
	ErrorMessage *string
	Metadata     json.RawMessage
}

// ApplyUpdate moves the job to u.Status. Reports for a job that is already
// terminal, or already in the reported status, change nothing and return
// applied=false, so a repeated callback never refunds twice.
func (s *Service) ApplyUpdate(ctx context.Context, u Update) (*models.VideoJob, bool, error) {
	if !u.Status.Valid() {
		return nil, false, apperr.Validation("unknown status", map[string]string{"status": "must be queued, processing, completed, failed or canceled"})
	}
	if len(u.Metadata) > 0 && !json.Valid(u.Metadata) {
		return nil, false, apperr.Validation("metadata must be valid JSON", map[string]string{"metadata": "invalid JSON"})
	}

	var (
		job     *models.VideoJob
		applied bool
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		job, err = s.lock(ctx, u.JobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() || job.Status == u.Status {
			return nil
		}
		if !CanTransition(job.Status, u.Status) {
			return ErrInvalidTransition
		}
		if err := s.finish(ctx, job, u); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		s.log.Info("video job updated", "job_id", job.ID, "status", job.Status)
	} else {
		s.log.Debug("video job update ignored", "job_id", job.ID, "status", job.Status, "reported", u.Status)
	}
	return job, applied, nil
}

// finish writes the new status onto a locked job and refunds it when the
// status calls for it. It must run inside the caller's transaction.
func (s *Service) finish(ctx context.Context, job *models.VideoJob, u Update) error {
	now := database.NowUTC()
	updates := map[string]any{"status": u.Status, "updated_at": now}

	setLocation(updates, "video_url", "storage_video_path", u.VideoURL, &job.VideoURL, &job.StorageVideoPath)
	setLocation(updates, "thumbnail_url", "storage_thumbnail_path", u.ThumbnailURL, &job.ThumbnailURL, &job.StorageThumbnailPath)
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
		job.ErrorMessage = u.ErrorMessage
	}
	if len(u.Metadata) > 0 {
		updates["metadata"] = datatypes.JSON(u.Metadata)
		job.Metadata = datatypes.JSON(u.Metadata)
	}
	if u.Status.IsTerminal() {
		updates["completed_at"] = now
		job.CompletedAt = &now
	}

	err := s.tx.DB(ctx).Model(&models.VideoJob{}).Where("id = ?", job.ID).Updates(updates).Error
	if err != nil {
		return database.TranslateError(err, "video job")
	}
	job.Status = u.Status
	job.UpdatedAt = now

	if refunds(u.Status) {
		return s.refund(ctx, job)
	}
	return nil
}

// setLocation stores bucket locations as storage paths and anything else as
// a plain URL.
func setLocation(updates map[string]any, urlCol, pathCol string, raw *string, url, path **string) {
	if raw == nil || *raw == "" {
		return
	}
	v := *raw
	if storage.IsObjectLocation(v) {
		updates[pathCol] = v
		*path = &v
		return
	}
	updates[urlCol] = v
	*url = &v
}

// refund returns the job's cost to the month it was reserved in and posts
// the compensating ledger entry.
func (s *Service) refund(ctx context.Context, job *models.VideoJob) error {
	if job.CostCredits <= 0 {
		return nil
	}
	if err := s.caps.Release(ctx, job.ProjectID, job.CapMonthKey, job.CostCredits); err != nil {
		return err
	}
	_, err := s.ledger.Apply(ctx, credits.Entry{
		OrganizationID: job.OrganizationID,
		ProjectID:      &job.ProjectID,
		UserID:         job.UserID,
		VideoJobID:     &job.ID,
		Delta:          job.CostCredits,
		Source:         models.SourceRefund,
		Reason:         "video job " + string(job.Status),
	})
	return err
}

// Stuck lists unfinished jobs created before cutoff. Nothing moves them
// automatically; operators decide from `iamctl jobs stuck`.
func (s *Service) Stuck(ctx context.Context, cutoff time.Time) ([]models.VideoJob, error) {
	var jobs []models.VideoJob
	err := s.tx.DB(ctx).
		Where("status IN ? AND created_at < ?", []models.VideoStatus{models.VideoQueued, models.VideoProcessing}, cutoff.UTC()).
		Order("created_at").
		Find(&jobs).Error
	return jobs, database.TranslateError(err, "video jobs")
}
