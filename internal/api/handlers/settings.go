package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/settings"
)

type SettingsHandler struct {
	settings *settings.Service
	log      *slog.Logger
}

func NewSettingsHandler(st *settings.Service, log *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: st, log: log}
}

type UpdateSettingsRequest struct {
	CreditsPerVideo       *int64   `json:"credits_per_video" validate:"omitempty,gt=0"`
	MaxDurationSec        *int     `json:"max_duration_sec" validate:"omitempty,gt=0,max=600"`
	SupportedAspectRatios []string `json:"supported_aspect_ratios" validate:"omitempty,min=1,dive,aspect_ratio"`
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.Get(r.Context())
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, current)
}

// Update is mounted behind the platform superadmin gate.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	updated, err := h.settings.Update(r.Context(), settings.Patch{
		CreditsPerVideo:       req.CreditsPerVideo,
		MaxDurationSec:        req.MaxDurationSec,
		SupportedAspectRatios: req.SupportedAspectRatios,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}
