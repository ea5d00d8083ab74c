package models

import (
	"time"

	"github.com/google/uuid"
)

type LedgerSource string

const (
	SourceAllocation LedgerSource = "allocation"
	SourceDebit      LedgerSource = "debit"
	SourceRefund     LedgerSource = "refund"
	SourceAdjustment LedgerSource = "adjustment"
)

func (s LedgerSource) Valid() bool {
	switch s {
	case SourceAllocation, SourceDebit, SourceRefund, SourceAdjustment:
		return true
	}
	return false
}

// Wallet is the cached balance of an organization. The ledger is the source
// of truth; the row doubles as the per-organization lock for writers.
type Wallet struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// LedgerEntry is immutable once written.
type LedgerEntry struct {
	Record
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;index" json:"organization_id"`
	ProjectID      *uuid.UUID   `gorm:"type:uuid;index" json:"project_id,omitempty"`
	UserID         *uuid.UUID   `gorm:"type:uuid" json:"user_id,omitempty"`
	VideoJobID     *uuid.UUID   `gorm:"type:uuid;index" json:"video_job_id,omitempty"`
	Delta          int64        `gorm:"not null" json:"delta"`
	Source         LedgerSource `gorm:"not null;index" json:"source"`
	Reason         string       `json:"reason"`
	BalanceAfter   int64        `gorm:"not null" json:"balance_after"`
}

func (LedgerEntry) TableName() string {
	return "credit_ledger"
}
