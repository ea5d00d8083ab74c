package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database/models"
)

type CreditHandler struct {
	credits *credits.Service
	log     *slog.Logger
}

func NewCreditHandler(creditSvc *credits.Service, log *slog.Logger) *CreditHandler {
	return &CreditHandler{credits: creditSvc, log: log}
}

type AdjustmentRequest struct {
	Delta     int64      `json:"delta" validate:"ne=0"`
	Reason    string     `json:"reason" validate:"notblank,max=500"`
	ProjectID *uuid.UUID `json:"project_id"`
}

type AllocationRequest struct {
	Source models.LedgerSource `json:"source" validate:"omitempty,oneof=allocation adjustment"`
	Delta  int64               `json:"delta" validate:"ne=0"`
	Reason string              `json:"reason" validate:"max=500"`
}

// Summary is the credits dashboard; ?recent=N sizes the recent list.
func (h *CreditHandler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	summary, err := h.credits.Summary(r.Context(), middleware.GetCaller(r.Context()), orgID, queryInt(r, "recent"))
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

func (h *CreditHandler) Ledger(w http.ResponseWriter, r *http.Request) {
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

	page := pagination(r)
	entries, total, err := h.credits.Ledger(r.Context(), middleware.GetCaller(r.Context()), orgID, credits.ListFilter{
		ProjectID: projectID,
		Source:    models.LedgerSource(r.URL.Query().Get("source")),
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.Paginate(entries, total, page))
}

// Adjust posts a signed correction for callers holding credits:adjust.
func (h *CreditHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req AdjustmentRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	entry, err := h.credits.Adjust(r.Context(), middleware.GetCaller(r.Context()), orgID, req.Delta, req.Reason, req.ProjectID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, entry)
}

// Allocate is the platform operator's top up. Source defaults to allocation.
func (h *CreditHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req AllocationRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	if req.Source == "" {
		req.Source = models.SourceAllocation
	}

	entry, err := h.credits.Allocate(r.Context(), middleware.GetCaller(r.Context()), orgID, req.Source, req.Delta, req.Reason)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, entry)
}
