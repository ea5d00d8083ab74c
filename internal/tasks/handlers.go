package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/provider"
	"github.com/hugh/ia-marketing/internal/videos"
)

// Submitter sends a job to the video provider.
type Submitter interface {
	Name() string
	Submit(ctx context.Context, req provider.GenerationRequest) (*provider.Generation, error)
}

// Jobs is the part of the video service the worker drives.
type Jobs interface {
	Load(ctx context.Context, id uuid.UUID) (*models.VideoJob, error)
	RecordDispatch(ctx context.Context, jobID uuid.UUID, provider, providerJobID string) error
	ApplyUpdate(ctx context.Context, u videos.Update) (*models.VideoJob, bool, error)
}

type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]credits.Drift, error)
}

type Handler struct {
	jobs       Jobs
	submitter  Submitter
	reconciler Reconciler
	logger     *slog.Logger

	// finalAttempt reports whether a failure now exhausts the task's retries.
	finalAttempt func(ctx context.Context) bool
}

func NewHandler(jobs Jobs, submitter Submitter, reconciler Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		jobs:         jobs,
		submitter:    submitter,
		reconciler:   reconciler,
		logger:       logger,
		finalAttempt: lastRetry,
	}
}

// lastRetry treats a context without asynq metadata as a single attempt.
func lastRetry(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVideoDispatch, h.HandleDispatch)
	mux.HandleFunc(TypeLedgerReconcile, h.HandleReconcile)
}

// HandleDispatch submits a queued job to the provider and records the
// provider's id. When the provider refuses the job, or the last retry
// fails, the job is failed and refunded.
func (h *Handler) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	job, err := h.jobs.Load(ctx, payload.JobID)
	if errors.Is(err, videos.ErrNotFound) {
		h.logger.Warn("dispatch for unknown job", "job_id", payload.JobID)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || job.ProviderJobID != nil {
		h.logger.Debug("dispatch skipped", "job_id", job.ID, "status", job.Status)
		return nil
	}

	h.logger.Info("dispatching video job", "job_id", job.ID, "provider", h.submitter.Name())

	gen, err := h.submitter.Submit(ctx, provider.GenerationRequest{
		JobID:      job.ID,
		Prompt:     job.PromptTextFinal,
		Parameters: json.RawMessage(job.Parameters),
	})
	if err != nil {
		rejected := errors.Is(err, provider.ErrRejected)
		if !rejected && !h.finalAttempt(ctx) {
			h.logger.Warn("dispatch failed, will retry", "job_id", job.ID, "error", err)
			return err
		}

		h.logger.Error("dispatch failed", "job_id", job.ID, "rejected", rejected, "error", err)
		msg := "video provider did not accept the job"
		if _, _, failErr := h.jobs.ApplyUpdate(ctx, videos.Update{JobID: job.ID, Status: models.VideoFailed, ErrorMessage: &msg}); failErr != nil {
			return fmt.Errorf("fail undispatched job: %w", failErr)
		}
		return nil
	}

	if err := h.jobs.RecordDispatch(ctx, job.ID, h.submitter.Name(), gen.ID); err != nil {
		return err
	}
	if gen.Status == string(models.VideoProcessing) {
		if _, _, err := h.jobs.ApplyUpdate(ctx, videos.Update{JobID: job.ID, Status: models.VideoProcessing}); err != nil {
			h.logger.Warn("failed to mark job processing", "job_id", job.ID, "error", err)
		}
	}

	h.logger.Info("video job dispatched", "job_id", job.ID, "provider_job_id", gen.ID)
	return nil
}

// HandleReconcile logs every organization whose wallet disagrees with its
// ledger. It never corrects balances.
func (h *Handler) HandleReconcile(ctx context.Context, _ *asynq.Task) error {
	drifts, err := h.reconciler.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile ledger: %w", err)
	}
	if len(drifts) > 0 {
		h.logger.Error("ledger reconciliation found drift", "organizations", len(drifts))
	} else {
		h.logger.Info("ledger reconciliation clean")
	}
	return nil
}
