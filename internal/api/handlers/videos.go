package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/videos"
)

// IdempotencyKeyHeader makes job creation safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

type VideoHandler struct {
	videos *videos.Service
	log    *slog.Logger
}

func NewVideoHandler(videoSvc *videos.Service, log *slog.Logger) *VideoHandler {
	return &VideoHandler{videos: videoSvc, log: log}
}

type CreateVideoRequest struct {
	ProjectID  uuid.UUID         `json:"project_id" validate:"required"`
	PromptID   *uuid.UUID        `json:"prompt_id"`
	PromptText string            `json:"prompt_text" validate:"max=10000"`
	Parameters videos.Parameters `json:"parameters"`
}

// Create answers 201 for a new job and 200 when the idempotency key
// replays an earlier one.
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	job, replayed, err := h.videos.Create(r.Context(), middleware.GetCaller(r.Context()), videos.CreateInput{
		ProjectID:      req.ProjectID,
		PromptID:       req.PromptID,
		PromptText:     req.PromptText,
		Parameters:     req.Parameters,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	respond.JSON(w, status, job)
}

func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	job, err := h.videos.Get(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, job)
}

func (h *VideoHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	job, err := h.videos.Cancel(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, job)
}

// List pages through an organization's jobs, newest first.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	projectID, err := queryUUID(r, "project_id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	status := models.VideoStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respond.Error(w, r, h.log, apperr.Validation("invalid status", map[string]string{"status": "must be queued, processing, completed, failed or canceled"}))
		return
	}

	page := pagination(r)
	jobs, total, err := h.videos.List(r.Context(), middleware.GetCaller(r.Context()), orgID, videos.ListFilter{
		ProjectID: projectID,
		Status:    status,
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.Paginate(jobs, total, page))
}

// WebhookHandler receives provider status callbacks. It sits outside bearer
// auth; the HMAC signature is the only credential.
type WebhookHandler struct {
	verifier  *videos.SignatureVerifier
	processor *videos.WebhookProcessor
	log       *slog.Logger
}

func NewWebhookHandler(verifier *videos.SignatureVerifier, processor *videos.WebhookProcessor, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor, log: log}
}

func (h *WebhookHandler) VideoProvider(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respond.Error(w, r, h.log, errBadBody.Wrap(err))
		return
	}

	if err := h.verifier.Verify(r.Header.Get(videos.SignatureHeader), body); err != nil {
		h.log.Warn("webhook signature rejected", "error", err, "remote_addr", r.RemoteAddr)
		respond.Error(w, r, h.log, err)
		return
	}

	result, err := h.processor.Process(r.Context(), body)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
