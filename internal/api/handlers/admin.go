package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/organizations"
)

// AdminHandler serves the platform console. The routes are mounted behind
// RequirePlatformSuperadmin and the services check the role again.
type AdminHandler struct {
	orgs *organizations.Service
	log  *slog.Logger
}

func NewAdminHandler(orgSvc *organizations.Service, log *slog.Logger) *AdminHandler {
	return &AdminHandler{orgs: orgSvc, log: log}
}

type CreateOrganizationRequest struct {
	Name           string                    `json:"name" validate:"notblank,max=200"`
	Description    string                    `json:"description" validate:"max=2000"`
	Plan           models.Plan               `json:"plan" validate:"omitempty,oneof=free pro enterprise"`
	Status         models.OrganizationStatus `json:"status" validate:"omitempty,oneof=active suspended inactive"`
	InitialCredits int64                     `json:"initial_credits" validate:"gte=0"`
}

type UpdateOrganizationRequest struct {
	Name        *string                    `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string                    `json:"description" validate:"omitempty,max=2000"`
	Plan        *models.Plan               `json:"plan" validate:"omitempty,oneof=free pro enterprise"`
	Status      *models.OrganizationStatus `json:"status" validate:"omitempty,oneof=active suspended inactive"`
}

type AddMemberRequest struct {
	UserID *uuid.UUID  `json:"user_id" validate:"required_without=Email"`
	Email  string      `json:"email" validate:"omitempty,email"`
	Role   models.Role `json:"role" validate:"omitempty,oneof=member admin superadmin"`
}

type UpdateMemberRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=member admin superadmin"`
}

func (h *AdminHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	page := pagination(r)
	status := models.OrganizationStatus(r.URL.Query().Get("status"))

	list, total, err := h.orgs.List(r.Context(), middleware.GetCaller(r.Context()), organizations.ListFilter{
		Search: r.URL.Query().Get("search"),
		Status: status,
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.Paginate(list, total, page))
}

func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	org, err := h.orgs.Create(r.Context(), middleware.GetCaller(r.Context()), organizations.CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		Plan:           req.Plan,
		Status:         req.Status,
		InitialCredits: req.InitialCredits,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, org)
}

func (h *AdminHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	detail, err := h.orgs.Get(r.Context(), middleware.GetCaller(r.Context()), orgID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, detail)
}

func (h *AdminHandler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req UpdateOrganizationRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	org, err := h.orgs.Update(r.Context(), middleware.GetCaller(r.Context()), orgID, organizations.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Plan:        req.Plan,
		Status:      req.Status,
	})
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, org)
}

// DeleteOrganization soft deletes; it is refused while jobs are active.
func (h *AdminHandler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	if err := h.orgs.Delete(r.Context(), middleware.GetCaller(r.Context()), orgID); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	members, err := h.orgs.ListMembers(r.Context(), middleware.GetCaller(r.Context()), orgID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, members)
}

// AddMember takes either a user id or the email of an existing profile.
func (h *AdminHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req AddMemberRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	m, err := h.orgs.AddMember(r.Context(), middleware.GetCaller(r.Context()), orgID, organizations.MemberRef{
		UserID: req.UserID,
		Email:  req.Email,
	}, req.Role)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, m)
}

func (h *AdminHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	orgID, userID, err := memberPath(r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	var req UpdateMemberRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	m, err := h.orgs.UpdateMember(r.Context(), middleware.GetCaller(r.Context()), orgID, userID, req.Role)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

func (h *AdminHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID, userID, err := memberPath(r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	if err := h.orgs.RemoveMember(r.Context(), middleware.GetCaller(r.Context()), orgID, userID); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}

	page := pagination(r)
	logs, total, err := h.orgs.AuditLogs(r.Context(), middleware.GetCaller(r.Context()), orgID, page.PerPage, page.Offset())
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.Paginate(logs, total, page))
}

func memberPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	userID, err := pathUUID(r, "userID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if userID == uuid.Nil {
		return uuid.Nil, uuid.Nil, apperr.Validation("invalid userID", map[string]string{"userID": "must not be empty"})
	}
	return orgID, userID, nil
}
