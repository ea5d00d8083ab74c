package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/projects"
)

type ProjectHandler struct {
	projects *projects.Service
	log      *slog.Logger
}

func NewProjectHandler(projectSvc *projects.Service, log *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projectSvc, log: log}
}

type ProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type CapRequest struct {
	MonthlyCap *int64 `json:"monthly_cap" validate:"omitempty,gte=0"`
}

// List returns the organization's active projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	list, err := h.projects.ListActive(r.Context(), middleware.GetCaller(r.Context()), orgID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req ProjectRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	p, err := h.projects.Create(r.Context(), middleware.GetCaller(r.Context()), orgID, projects.Input{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "projectID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req ProjectRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	p, err := h.projects.Update(r.Context(), middleware.GetCaller(r.Context()), id, projects.Input{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// Deactivate hides the project and stops new jobs against it.
func (h *ProjectHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "projectID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	if err := h.projects.Deactivate(r.Context(), middleware.GetCaller(r.Context()), id); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) GetCap(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "projectID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	view, err := h.projects.GetCap(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// SetCap takes {"monthly_cap": null} to remove the ceiling.
func (h *ProjectHandler) SetCap(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "projectID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req CapRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	view, err := h.projects.SetCap(r.Context(), middleware.GetCaller(r.Context()), id, req.MonthlyCap)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}
