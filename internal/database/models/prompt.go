package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PromptScope string

const (
	PromptScopeGlobal       PromptScope = "global"
	PromptScopeOrganization PromptScope = "organization"
)

// Prompt is one immutable version of a prompt lineage. Revisions insert a new
// row with the next version number; only IsPublished ever changes in place.
type Prompt struct {
	Base
	LineageID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_prompt_lineage_version" json:"lineage_id"`
	Version        int            `gorm:"not null;uniqueIndex:idx_prompt_lineage_version" json:"version"`
	Scope          PromptScope    `gorm:"not null;index" json:"scope"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `json:"description"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Variables      datatypes.JSON `json:"variables,omitempty"`
	IsPublished    bool           `gorm:"not null;default:false;index" json:"is_published"`
	CreatedBy      *uuid.UUID     `gorm:"type:uuid" json:"created_by,omitempty"`
}

func (Prompt) TableName() string {
	return "prompts"
}
