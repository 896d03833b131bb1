package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EntryType string

const (
	EntryTypeStamp  EntryType = "stamp"
	EntryTypeRedeem EntryType = "redeem"
)

// LedgerEntry is the immutable audit row for one stamp or redeem
// operation. Rows are created once and never mutated or deleted.
type LedgerEntry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_ledger_entries_account_key,priority:1" json:"account_id"`
	StoreID   snowflake.ID `gorm:"not null;index" json:"store_id"`
	StaffID   snowflake.ID `gorm:"not null" json:"staff_id"`
	Type      EntryType    `gorm:"type:text;not null" json:"type"`
	Count     int          `gorm:"not null" json:"count"`

	IdempotencyKey *string `gorm:"type:text;uniqueIndex:ux_ledger_entries_account_key,priority:2" json:"idempotency_key,omitempty"`

	UserAgent string            `gorm:"type:text" json:"user_agent,omitempty"`
	IPAddress string            `gorm:"type:text" json:"ip_address,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

type PointsTransactionType string

const (
	PointsTransactionEarn   PointsTransactionType = "earn"
	PointsTransactionRedeem PointsTransactionType = "redeem"
)

// PointsTransaction is the parallel reconciliation ledger with signed
// point deltas: positive for earn, negative for redeem.
type PointsTransaction struct {
	ID        snowflake.ID          `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID          `gorm:"not null;index" json:"account_id"`
	Type      PointsTransactionType `gorm:"type:text;not null" json:"type"`
	Points    int                   `gorm:"not null" json:"points"`

	IdempotencyKey *string `gorm:"type:text;uniqueIndex" json:"idempotency_key,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PointsTransaction) TableName() string { return "points_transactions" }
