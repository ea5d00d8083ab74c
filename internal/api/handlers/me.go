package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/profiles"
)

type MeHandler struct {
	profiles *profiles.Service
	log      *slog.Logger
}

func NewMeHandler(profileSvc *profiles.Service, log *slog.Logger) *MeHandler {
	return &MeHandler{profiles: profileSvc, log: log}
}

type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=120"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
	Timezone  *string `json:"timezone" validate:"omitempty,max=64"`
}

type DefaultOrganizationRequest struct {
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// Context returns the caller's profile, organizations and default.
func (h *MeHandler) Context(w http.ResponseWriter, r *http.Request) {
	out, err := h.profiles.UserContext(r.Context(), middleware.GetCaller(r.Context()))
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *MeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	profile, err := h.profiles.UpdateProfile(r.Context(), middleware.GetCaller(r.Context()), profiles.ProfileUpdate{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
		Timezone:  req.Timezone,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, profile)
}

// SetDefaultOrganization stores an explicit default; null clears it.
func (h *MeHandler) SetDefaultOrganization(w http.ResponseWriter, r *http.Request) {
	var req DefaultOrganizationRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	profile, err := h.profiles.SetDefaultOrganization(r.Context(), middleware.GetCaller(r.Context()), req.OrganizationID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, profile)
}
