package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/prompts"
)

type PromptHandler struct {
	prompts *prompts.Service
	log     *slog.Logger
}

func NewPromptHandler(promptSvc *prompts.Service, log *slog.Logger) *PromptHandler {
	return &PromptHandler{prompts: promptSvc, log: log}
}

type CreatePromptRequest struct {
	Scope          models.PromptScope `json:"scope" validate:"required,oneof=global organization"`
	OrganizationID *uuid.UUID         `json:"organization_id"`
	Title          string             `json:"title" validate:"notblank,max=200"`
	Description    string             `json:"description" validate:"max=2000"`
	Content        string             `json:"content" validate:"notblank,max=10000"`
	Variables      json.RawMessage    `json:"variables"`
	Publish        bool               `json:"publish"`
}

type RevisePromptRequest struct {
	Title       *string         `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	Content     *string         `json:"content" validate:"omitempty,notblank,max=10000"`
	Variables   json.RawMessage `json:"variables"`
	Publish     *bool           `json:"publish"`
}

type PublishPromptRequest struct {
	Version   int   `json:"version" validate:"gt=0"`
	Published *bool `json:"published"`
}

// List returns global templates. include_drafts is for platform superadmins.
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	includeDrafts := r.URL.Query().Get("include_drafts") == "true"
	list, err := h.prompts.ListGlobal(r.Context(), middleware.GetCaller(r.Context()), includeDrafts)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

// ListForOrganization returns what members may pick; manage=true returns
// the organization's own lineages with drafts.
func (h *PromptHandler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	manage := r.URL.Query().Get("manage") == "true"
	list, err := h.prompts.ListForOrganization(r.Context(), middleware.GetCaller(r.Context()), orgID, manage)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	p, err := h.prompts.Create(r.Context(), middleware.GetCaller(r.Context()), prompts.CreateInput{
		Scope:          req.Scope,
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Description:    req.Description,
		Content:        req.Content,
		Variables:      req.Variables,
		Publish:        req.Publish,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	p, err := h.prompts.Get(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	versions, err := h.prompts.Versions(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, versions)
}

// Revise appends a new version to the lineage.
func (h *PromptHandler) Revise(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req RevisePromptRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	p, err := h.prompts.Revise(r.Context(), middleware.GetCaller(r.Context()), id, prompts.ReviseInput{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Variables:   req.Variables,
		Publish:     req.Publish,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

// Publish sets the flag of one version; published defaults to true.
func (h *PromptHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req PublishPromptRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	published := req.Published == nil || *req.Published

	p, err := h.prompts.SetPublished(r.Context(), middleware.GetCaller(r.Context()), id, req.Version, published)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	if err := h.prompts.Delete(r.Context(), middleware.GetCaller(r.Context()), id); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
