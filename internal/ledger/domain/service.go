package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
)

type StampRequest struct {
	AccountID      snowflake.ID
	StaffID        snowflake.ID
	Count          int
	IdempotencyKey string
	// OverrideCooldown lets staff stamp again within the cooldown
	// window, e.g. for a group order.
	OverrideCooldown bool
	UserAgent        string
	IPAddress        string
}

type StampResponse struct {
	StampCount    int  `json:"stamp_count"`
	RewardBalance int  `json:"reward_balance"`
	RewardEarned  bool `json:"reward_earned"`
	IsDuplicate   bool `json:"is_duplicate"`
}

type RedeemRequest struct {
	AccountID      snowflake.ID
	StaffID        snowflake.ID
	Quantity       int
	IdempotencyKey string
	UserAgent      string
	IPAddress      string
}

type RedeemResponse struct {
	StampCount    int  `json:"stamp_count"`
	RewardBalance int  `json:"reward_balance"`
	IsDuplicate   bool `json:"is_duplicate"`
}

type Service interface {
	Stamp(ctx context.Context, req StampRequest) (StampResponse, error)
	Redeem(ctx context.Context, req RedeemRequest) (RedeemResponse, error)
}

// Syncer is the post-commit hook that schedules wallet synchronization
// for a mutated account. Implementations must never block the caller.
type Syncer interface {
	EnqueueSync(account accountdomain.LoyaltyAccount)
}

var (
	ErrAccessDenied         = errors.New("access_denied")
	ErrCooldownActive       = errors.New("cooldown_active")
	ErrVerificationRequired = errors.New("verification_required")
	ErrInsufficientRewards  = errors.New("insufficient_rewards")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrStaffNotFound        = errors.New("staff_not_found")
	ErrInvalidCount         = errors.New("invalid_count")
	ErrStaleAccount         = errors.New("stale_account")
)

// CooldownError carries the remaining wait alongside ErrCooldownActive.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown_active: %ds remaining", int(e.Remaining.Seconds()))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}
