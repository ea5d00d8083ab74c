package videos

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/projects"
	"github.com/hugh/ia-marketing/internal/prompts"
	"github.com/hugh/ia-marketing/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = apperr.NotFound("video job not found")
	ErrInvalidTransition    = apperr.Conflict("video job cannot move to the requested status")
	ErrOrganizationInactive = apperr.Conflict("organization is not active")
	ErrNotOwner             = apperr.Forbidden("members may only cancel their own video jobs")
	ErrPromptRequired       = apperr.Validation("prompt text is required", map[string]string{"prompt_text": "required"})

	errDuplicateJob = apperr.Conflict("video job already exists")
)

const maxIdempotencyKey = 255

// Dispatcher hands a committed job to the provider queue.
type Dispatcher interface {
	EnqueueDispatch(ctx context.Context, jobID uuid.UUID) error
}

// URLSigner turns stored output locations into download links.
type URLSigner interface {
	SignedURL(ctx context.Context, raw string) (string, error)
}

type Service struct {
	tx       *database.TxManager
	gate     *authz.Gate
	ledger   *credits.Ledger
	caps     *credits.CapTracker
	projects *projects.Service
	prompts  *prompts.Store
	settings *settings.Service
	audit    *audit.Recorder
	log      *slog.Logger

	dispatcher Dispatcher
	signer     URLSigner
}

func NewService(
	tx *database.TxManager,
	gate *authz.Gate,
	ledger *credits.Ledger,
	caps *credits.CapTracker,
	projectSvc *projects.Service,
	promptStore *prompts.Store,
	st *settings.Service,
	rec *audit.Recorder,
	log *slog.Logger,
) *Service {
	return &Service{
		tx:       tx,
		gate:     gate,
		ledger:   ledger,
		caps:     caps,
		projects: projectSvc,
		prompts:  promptStore,
		settings: st,
		audit:    rec,
		log:      log,
	}
}

// WithDispatcher enables provider dispatch after job creation.
func (s *Service) WithDispatcher(d Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// WithURLSigner enables signed links for bucket locations.
func (s *Service) WithURLSigner(signer URLSigner) *Service {
	s.signer = signer
	return s
}

type CreateInput struct {
	ProjectID      uuid.UUID
	PromptID       *uuid.UUID
	PromptText     string
	Parameters     Parameters
	IdempotencyKey string
}

// Create reserves the project's cap, debits the organization and inserts the
// job as one transaction. A failure at any step leaves no job, no ledger
// entry and no cap usage behind. The boolean is true when the idempotency key
// matched an earlier job, which is returned unchanged.
func (s *Service) Create(ctx context.Context, caller authz.Caller, in CreateInput) (*models.VideoJob, bool, error) {
	if !caller.Authenticated() {
		return nil, false, authz.ErrUnauthenticated
	}

	project, err := s.projects.Load(ctx, in.ProjectID)
	if err != nil {
		return nil, false, err
	}
	orgID := project.OrganizationID
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionVideosCreate); err != nil {
		if errors.Is(err, authz.ErrNotMember) {
			return nil, false, projects.ErrNotFound
		}
		return nil, false, err
	}
	if !project.IsActive {
		return nil, false, projects.ErrInactive
	}
	if !project.Organization.IsActive() {
		return nil, false, ErrOrganizationInactive
	}

	text := strings.TrimSpace(in.PromptText)
	if text == "" {
		return nil, false, ErrPromptRequired
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKey {
		return nil, false, apperr.Validation("idempotency key too long", map[string]string{"Idempotency-Key": "at most 255 characters"})
	}
	if key != "" {
		if job, err := s.findByKey(ctx, orgID, key); err != nil || job != nil {
			return job, job != nil, err
		}
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	params, err := in.Parameters.Normalize(cfg)
	if err != nil {
		return nil, false, err
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, false, apperr.Validation("invalid video parameters", nil).Wrap(err)
	}

	job := &models.VideoJob{
		OrganizationID:  orgID,
		ProjectID:       project.ID,
		UserID:          &caller.UserID,
		PromptTextFinal: text,
		Parameters:      datatypes.JSON(rawParams),
		Status:          models.VideoQueued,
		CostCredits:     cfg.CreditsPerVideo,
	}
	if key != "" {
		job.IdempotencyKey = &key
	}
	if in.PromptID != nil {
		pinned, err := s.prompts.ResolvePinned(ctx, *in.PromptID, orgID)
		if err != nil {
			return nil, false, err
		}
		job.PromptID = &pinned.ID
		job.PromptVersion = &pinned.Version
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		monthKey, err := s.caps.Reserve(ctx, project.ID, job.CostCredits)
		if err != nil {
			return err
		}
		job.CapMonthKey = monthKey

		if err := s.tx.DB(ctx).Create(job).Error; err != nil {
			return database.TranslateError(err, "video job")
		}

		_, err = s.ledger.Apply(ctx, credits.Entry{
			OrganizationID: orgID,
			ProjectID:      &project.ID,
			UserID:         &caller.UserID,
			VideoJobID:     &job.ID,
			Delta:          -job.CostCredits,
			Source:         models.SourceDebit,
			Reason:         "video generation",
		})
		if err != nil {
			return err
		}
		// The debit holds the organization lock; an organization deleted or
		// suspended while this request waited for it is seen here.
		if err := s.checkOrganization(ctx, orgID); err != nil {
			return err
		}

		return s.audit.Record(ctx, audit.Event{
			OrganizationID: &orgID,
			UserID:         &caller.UserID,
			Action:         audit.ActionVideoCreate,
			EntityType:     "video_job",
			EntityID:       &job.ID,
			Metadata:       map[string]any{"project_id": project.ID, "cost_credits": job.CostCredits},
		})
	})
	if err != nil {
		if key != "" && errors.Is(err, errDuplicateJob) {
			// Lost a race with a request carrying the same key.
			if prior, findErr := s.findByKey(ctx, orgID, key); findErr == nil && prior != nil {
				return prior, true, nil
			}
		}
		return nil, false, err
	}

	s.log.Info("video job created",
		"job_id", job.ID,
		"organization_id", orgID,
		"project_id", project.ID,
		"cost_credits", job.CostCredits,
		"month_key", job.CapMonthKey,
	)

	s.dispatch(ctx, job)
	return job, false, nil
}

func (s *Service) checkOrganization(ctx context.Context, orgID uuid.UUID) error {
	var org models.Organization
	err := s.tx.DB(ctx).Where("id = ?", orgID).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authz.ErrNotMember
	}
	if err != nil {
		return database.TranslateError(err, "organization")
	}
	if !org.IsActive() {
		return ErrOrganizationInactive
	}
	return nil
}

// dispatch queues the job for the provider. A job that cannot be queued is
// failed and refunded straight away rather than left waiting for a callback
// that will never come.
func (s *Service) dispatch(ctx context.Context, job *models.VideoJob) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.EnqueueDispatch(ctx, job.ID)
	if err == nil {
		return
	}

	s.log.Error("failed to enqueue video dispatch", "job_id", job.ID, "error", err)
	msg := "could not queue job for the video provider"
	updated, _, failErr := s.ApplyUpdate(ctx, Update{JobID: job.ID, Status: models.VideoFailed, ErrorMessage: &msg})
	if failErr != nil {
		s.log.Error("failed to fail undispatched job", "job_id", job.ID, "error", failErr)
		return
	}
	*job = *updated
}

func (s *Service) findByKey(ctx context.Context, orgID uuid.UUID, key string) (*models.VideoJob, error) {
	var job models.VideoJob
	err := s.tx.DB(ctx).
		Where("organization_id = ? AND idempotency_key = ?", orgID, key).
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.TranslateError(err, "video job")
	}
	return &job, nil
}

// Load returns a job without any access check.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*models.VideoJob, error) {
	var job models.VideoJob
	err := s.tx.DB(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "video job")
	}
	return &job, nil
}

func (s *Service) lock(ctx context.Context, id uuid.UUID) (*models.VideoJob, error) {
	var job models.VideoJob
	err := database.ForUpdate(s.tx.DB(ctx)).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.TranslateError(err, "video job")
	}
	return &job, nil
}

func (s *Service) authorize(ctx context.Context, caller authz.Caller, job *models.VideoJob, action authz.Action) (models.Role, error) {
	role, err := s.gate.Authorize(ctx, caller, job.OrganizationID, action)
	if err != nil {
		if errors.Is(err, authz.ErrNotMember) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// Get returns a job the caller's organization owns, with bucket locations
// replaced by signed links.
func (s *Service) Get(ctx context.Context, caller authz.Caller, id uuid.UUID) (*models.VideoJob, error) {
	job, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, caller, job, authz.ActionVideosRead); err != nil {
		return nil, err
	}
	s.presign(ctx, job)
	return job, nil
}

type ListFilter struct {
	ProjectID *uuid.UUID
	Status    models.VideoStatus
	Limit     int
	Offset    int
}

func (s *Service) List(ctx context.Context, caller authz.Caller, orgID uuid.UUID, f ListFilter) ([]models.VideoJob, int64, error) {
	if _, err := s.gate.Authorize(ctx, caller, orgID, authz.ActionVideosRead); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown status", map[string]string{"status": "must be queued, processing, completed, failed or canceled"})
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := s.tx.DB(ctx).Model(&models.VideoJob{}).Where("organization_id = ?", orgID)
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, database.TranslateError(err, "video jobs")
	}
	var jobs []models.VideoJob
	err := q.Order("created_at DESC").Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, database.TranslateError(err, "video jobs")
	}
	for i := range jobs {
		s.presign(ctx, &jobs[i])
	}
	return jobs, total, nil
}

// presign swaps stored bucket paths for signed links. Signing failures are
// logged and leave the links empty.
func (s *Service) presign(ctx context.Context, job *models.VideoJob) {
	if s.signer == nil {
		return
	}
	sign := func(path *string) *string {
		if path == nil {
			return nil
		}
		url, err := s.signer.SignedURL(ctx, *path)
		if err != nil {
			s.log.Warn("failed to sign output location", "job_id", job.ID, "error", err)
			return nil
		}
		return &url
	}
	if job.StorageVideoPath != nil {
		job.VideoURL = sign(job.StorageVideoPath)
	}
	if job.StorageThumbnailPath != nil {
		job.ThumbnailURL = sign(job.StorageThumbnailPath)
	}
}

// Cancel stops a queued or processing job and refunds it. Members may only
// cancel jobs they created.
func (s *Service) Cancel(ctx context.Context, caller authz.Caller, id uuid.UUID) (*models.VideoJob, error) {
	var canceled *models.VideoJob
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		job, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		role, err := s.authorize(ctx, caller, job, authz.ActionVideosCancel)
		if err != nil {
			return err
		}
		if role == models.RoleMember && (job.UserID == nil || *job.UserID != caller.UserID) {
			return ErrNotOwner
		}
		if !CanTransition(job.Status, models.VideoCanceled) {
			return ErrInvalidTransition
		}

		msg := "canceled by user"
		if err := s.finish(ctx, job, Update{Status: models.VideoCanceled, ErrorMessage: &msg}); err != nil {
			return err
		}
		canceled = job

		return s.audit.Record(ctx, audit.Event{
			OrganizationID: &job.OrganizationID,
			UserID:         &caller.UserID,
			Action:         audit.ActionVideoCancel,
			EntityType:     "video_job",
			EntityID:       &job.ID,
			Metadata:       map[string]any{"refunded": job.CostCredits},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("video job canceled", "job_id", id, "refunded", canceled.CostCredits)
	return canceled, nil
}

// RecordDispatch stores the provider's identifier for a job. Jobs that
// already finished are left alone.
func (s *Service) RecordDispatch(ctx context.Context, jobID uuid.UUID, provider, providerJobID string) error {
	updates := map[string]any{"provider": provider, "updated_at": database.NowUTC()}
	if providerJobID != "" {
		updates["provider_job_id"] = providerJobID
	}
	err := s.tx.DB(ctx).Model(&models.VideoJob{}).
		Where("id = ? AND status IN ?", jobID, []models.VideoStatus{models.VideoQueued, models.VideoProcessing}).
		Updates(updates).Error
	return database.TranslateError(err, "video job")
}
