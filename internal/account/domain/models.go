package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Store is the merchant read-model consumed by the loyalty core.
type Store struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"not null" json:"name"`
	RewardTarget    int          `gorm:"not null;default:10" json:"reward_target"`
	RequireVerified bool         `gorm:"not null;default:false" json:"require_verified"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Store) TableName() string { return "stores" }

type StaffRole string

const (
	StaffRoleMember        StaffRole = "member"
	StaffRoleOwner         StaffRole = "owner"
	StaffRolePlatformAdmin StaffRole = "platform_admin"
)

// Staff is the acting-merchant read-model; platform admins have StoreID 0.
type Staff struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID   snowflake.ID `gorm:"index" json:"store_id"`
	Name      string       `gorm:"not null" json:"name"`
	Role      StaffRole    `gorm:"type:text;not null;default:'member'" json:"role"`
	APIToken  string       `gorm:"type:text;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Staff) TableName() string { return "staff" }

// CanActOn reports whether the staff member may mutate accounts of the store.
func (s Staff) CanActOn(storeID snowflake.ID) bool {
	if s.Role == StaffRolePlatformAdmin {
		return true
	}
	return s.StoreID == storeID
}

// LoyaltyAccount is one customer's card at one store. Balances are
// mutated exclusively by the ledger engine; every other component
// reads it.
type LoyaltyAccount struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID    snowflake.ID `gorm:"not null;uniqueIndex:ux_accounts_store_customer,priority:1" json:"store_id"`
	CustomerID snowflake.ID `gorm:"not null;uniqueIndex:ux_accounts_store_customer,priority:2" json:"customer_id"`

	StampCount    int `gorm:"not null;default:0" json:"stamp_count"`
	RewardBalance int `gorm:"not null;default:0" json:"reward_balance"`

	RedeemToken       *string    `gorm:"type:text" json:"redeem_token,omitempty"`
	RewardAvailableAt *time.Time `json:"reward_available_at,omitempty"`
	RewardRedeemedAt  *time.Time `json:"reward_redeemed_at,omitempty"`

	Verified bool `gorm:"not null;default:false" json:"verified"`

	// Version increments on every ledger write and guards against
	// stale concurrent updates.
	Version int64 `gorm:"not null;default:0" json:"version"`

	PublicToken     string `gorm:"type:text;not null;uniqueIndex" json:"public_token"`
	WalletAuthToken string `gorm:"type:text;not null" json:"-"`
	ManualEntryCode string `gorm:"type:text;not null;index" json:"manual_entry_code"`

	LastStampedAt *time.Time `json:"last_stamped_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LoyaltyAccount) TableName() string { return "loyalty_accounts" }

// Redeemable reports whether the account currently holds a reward.
func (a LoyaltyAccount) Redeemable() bool {
	return a.RewardBalance > 0
}
