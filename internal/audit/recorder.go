package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/datatypes"
)

// Actions recorded by the services.
const (
	ActionOrganizationCreate = "organization.create"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"
	ActionMemberAdd          = "member.add"
	ActionMemberUpdate       = "member.update_role"
	ActionMemberRemove       = "member.remove"
	ActionCreditsAllocate    = "credits.allocate"
	ActionCreditsAdjust      = "credits.adjust"
	ActionProjectCreate      = "project.create"
	ActionProjectUpdate      = "project.update"
	ActionProjectDeactivate  = "project.deactivate"
	ActionProjectCap         = "project.set_cap"
	ActionPromptCreate       = "prompt.create"
	ActionPromptRevise       = "prompt.revise"
	ActionPromptPublish      = "prompt.publish"
	ActionPromptDelete       = "prompt.delete"
	ActionSettingsUpdate     = "settings.update"
	ActionVideoCreate        = "video.create"
	ActionVideoCancel        = "video.cancel"
	ActionPlatformRole       = "profile.platform_role"
)

// Event is one audited mutation.
type Event struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	Action         string
	EntityType     string
	EntityID       *uuid.UUID
	Metadata       map[string]any
}

// Recorder writes audit rows through the transaction on the context, so an
// event commits or rolls back with the change it describes.
type Recorder struct {
	tx *database.TxManager
}

func NewRecorder(tx *database.TxManager) *Recorder {
	return &Recorder{tx: tx}
}

func (r *Recorder) Record(ctx context.Context, e Event) error {
	row := &models.AuditLog{
		OrganizationID: e.OrganizationID,
		UserID:         e.UserID,
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		row.Metadata = datatypes.JSON(raw)
	}

	return database.TranslateError(r.tx.DB(ctx).Create(row).Error, "audit log")
}

// List returns an organization's audit trail, newest first.
func (r *Recorder) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.AuditLog, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.tx.DB(ctx).Model(&models.AuditLog{}).Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.TranslateError(err, "audit logs")
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	if err != nil {
		return nil, 0, database.TranslateError(err, "audit logs")
	}
	return logs, total, nil
}
