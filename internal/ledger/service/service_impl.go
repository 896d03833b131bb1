package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
	"github.com/kawhe-app/kawhe/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errDuplicateRace signals that the idempotency unique index fired
// after the pre-check, i.e. a concurrent request won the race. The
// transaction rolls back and the caller re-reads the committed state.
var errDuplicateRace = errors.New("duplicate_race")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	AccountRepo accountdomain.Repository
	Syncer      ledgerdomain.Syncer `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	accountRepo accountdomain.Repository
	syncer      ledgerdomain.Syncer
	metrics     *obsmetrics.Metrics
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		accountRepo: p.AccountRepo,
		syncer:      p.Syncer,
		metrics:     p.Metrics,
	}
}

func (s *Service) Stamp(ctx context.Context, req ledgerdomain.StampRequest) (ledgerdomain.StampResponse, error) {
	if req.Count < 1 {
		return ledgerdomain.StampResponse{}, ledgerdomain.ErrInvalidCount
	}

	var (
		resp    ledgerdomain.StampResponse
		updated accountdomain.LoyaltyAccount
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, store, staff, err := s.loadParticipants(ctx, tx, req.AccountID, req.StaffID)
		if err != nil {
			return err
		}
		if !staff.CanActOn(account.StoreID) {
			return ledgerdomain.ErrAccessDenied
		}

		if prior, found, err := s.findPrior(ctx, tx, account.ID, req.IdempotencyKey); err != nil {
			return err
		} else if found {
			resp = stampResultRecorded(prior, account)
			return nil
		}

		now := s.clock.Now()
		if !req.OverrideCooldown && account.LastStampedAt != nil {
			elapsed := now.Sub(*account.LastStampedAt)
			if elapsed < s.cfg.StampCooldown {
				return &ledgerdomain.CooldownError{Remaining: s.cfg.StampCooldown - elapsed}
			}
		}

		target := store.RewardTarget
		if target <= 0 {
			target = s.cfg.RewardTarget
		}

		total := account.StampCount + req.Count
		rewardDelta := total / target
		newStampCount := total % target
		newBalance := account.RewardBalance + rewardDelta

		redeemToken := account.RedeemToken
		rewardAvailableAt := account.RewardAvailableAt
		if newBalance > 0 && redeemToken == nil {
			token := uuid.NewString()
			redeemToken = &token
			rewardAvailableAt = &now
		}
		if newBalance == 0 {
			redeemToken = nil
			rewardAvailableAt = nil
		}

		if err := s.applyAccountUpdate(ctx, tx, account, map[string]any{
			"stamp_count":         newStampCount,
			"reward_balance":      newBalance,
			"redeem_token":        redeemToken,
			"reward_available_at": rewardAvailableAt,
			"last_stamped_at":     now,
			"version":             account.Version + 1,
			"updated_at":          now,
		}); err != nil {
			return err
		}

		meta := datatypes.JSONMap{
			"stamp_count":       newStampCount,
			"reward_balance":    newBalance,
			"reward_earned":     rewardDelta > 0,
			"override_cooldown": req.OverrideCooldown,
		}
		if err := s.appendAudit(ctx, tx, account, staff, ledgerdomain.EntryTypeStamp, req.Count, req.Count, req.IdempotencyKey, req.UserAgent, req.IPAddress, meta, now); err != nil {
			return err
		}

		updated = *account
		updated.StampCount = newStampCount
		updated.RewardBalance = newBalance
		updated.RedeemToken = redeemToken
		updated.RewardAvailableAt = rewardAvailableAt
		updated.LastStampedAt = &now
		updated.Version = account.Version + 1
		updated.UpdatedAt = now

		resp = ledgerdomain.StampResponse{
			StampCount:    newStampCount,
			RewardBalance: newBalance,
			RewardEarned:  rewardDelta > 0,
		}
		return nil
	})
	if errors.Is(err, errDuplicateRace) {
		return s.stampDuplicate(ctx, req)
	}
	if err != nil {
		s.metrics.IncLedgerOp("stamp", "error")
		return ledgerdomain.StampResponse{}, err
	}

	if resp.IsDuplicate {
		s.metrics.IncDuplicate()
		return resp, nil
	}

	s.metrics.IncLedgerOp("stamp", "ok")
	if s.syncer != nil {
		s.syncer.EnqueueSync(updated)
	}
	return resp, nil
}

func (s *Service) Redeem(ctx context.Context, req ledgerdomain.RedeemRequest) (ledgerdomain.RedeemResponse, error) {
	if req.Quantity < 1 {
		return ledgerdomain.RedeemResponse{}, ledgerdomain.ErrInvalidCount
	}

	var (
		resp    ledgerdomain.RedeemResponse
		updated accountdomain.LoyaltyAccount
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, store, staff, err := s.loadParticipants(ctx, tx, req.AccountID, req.StaffID)
		if err != nil {
			return err
		}
		if !staff.CanActOn(account.StoreID) {
			return ledgerdomain.ErrAccessDenied
		}

		if prior, found, err := s.findPrior(ctx, tx, account.ID, req.IdempotencyKey); err != nil {
			return err
		} else if found {
			resp = redeemResultRecorded(prior, account)
			return nil
		}

		if store.RequireVerified && !account.Verified {
			return ledgerdomain.ErrVerificationRequired
		}
		if account.RewardBalance < req.Quantity {
			return ledgerdomain.ErrInsufficientRewards
		}

		now := s.clock.Now()
		newBalance := account.RewardBalance - req.Quantity

		// Policy: the redeem token stays stable across partial
		// redemptions and is cleared only when the balance hits zero.
		redeemToken := account.RedeemToken
		rewardAvailableAt := account.RewardAvailableAt
		if newBalance == 0 {
			redeemToken = nil
			rewardAvailableAt = nil
		}

		if err := s.applyAccountUpdate(ctx, tx, account, map[string]any{
			"reward_balance":      newBalance,
			"redeem_token":        redeemToken,
			"reward_available_at": rewardAvailableAt,
			"reward_redeemed_at":  now,
			"version":             account.Version + 1,
			"updated_at":          now,
		}); err != nil {
			return err
		}

		target := store.RewardTarget
		if target <= 0 {
			target = s.cfg.RewardTarget
		}
		meta := datatypes.JSONMap{
			"stamp_count":    account.StampCount,
			"reward_balance": newBalance,
		}
		if err := s.appendAudit(ctx, tx, account, staff, ledgerdomain.EntryTypeRedeem, req.Quantity, -req.Quantity*target, req.IdempotencyKey, req.UserAgent, req.IPAddress, meta, now); err != nil {
			return err
		}

		updated = *account
		updated.RewardBalance = newBalance
		updated.RedeemToken = redeemToken
		updated.RewardAvailableAt = rewardAvailableAt
		updated.RewardRedeemedAt = &now
		updated.Version = account.Version + 1
		updated.UpdatedAt = now

		resp = ledgerdomain.RedeemResponse{
			StampCount:    account.StampCount,
			RewardBalance: newBalance,
		}
		return nil
	})
	if errors.Is(err, errDuplicateRace) {
		return s.redeemDuplicate(ctx, req)
	}
	if err != nil {
		s.metrics.IncLedgerOp("redeem", "error")
		return ledgerdomain.RedeemResponse{}, err
	}

	if resp.IsDuplicate {
		s.metrics.IncDuplicate()
		return resp, nil
	}

	s.metrics.IncLedgerOp("redeem", "ok")
	if s.syncer != nil {
		s.syncer.EnqueueSync(updated)
	}
	return resp, nil
}

func (s *Service) loadParticipants(ctx context.Context, tx *gorm.DB, accountID, staffID snowflake.ID) (*accountdomain.LoyaltyAccount, *accountdomain.Store, *accountdomain.Staff, error) {
	account, err := s.accountRepo.FindByID(ctx, tx, accountID)
	if err != nil {
		return nil, nil, nil, err
	}
	if account == nil {
		return nil, nil, nil, ledgerdomain.ErrAccountNotFound
	}

	store, err := s.accountRepo.FindStore(ctx, tx, account.StoreID)
	if err != nil {
		return nil, nil, nil, err
	}
	if store == nil {
		return nil, nil, nil, ledgerdomain.ErrAccountNotFound
	}

	staff, err := s.accountRepo.FindStaff(ctx, tx, staffID)
	if err != nil {
		return nil, nil, nil, err
	}
	if staff == nil {
		return nil, nil, nil, ledgerdomain.ErrStaffNotFound
	}

	return account, store, staff, nil
}

// findPrior checks the idempotency key inside the mutation transaction
// so there is no window for a duplicate to slip through a race.
func (s *Service) findPrior(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, key string) (*ledgerdomain.LedgerEntry, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	var entry ledgerdomain.LedgerEntry
	err := tx.WithContext(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &entry, true, nil
}

// applyAccountUpdate performs the optimistic-concurrency write: the
// UPDATE is guarded by the version the account was read at, and a
// zero-row result means a concurrent writer got there first.
func (s *Service) applyAccountUpdate(ctx context.Context, tx *gorm.DB, account *accountdomain.LoyaltyAccount, values map[string]any) error {
	result := tx.WithContext(ctx).
		Model(&accountdomain.LoyaltyAccount{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrStaleAccount
	}
	return nil
}

func (s *Service) appendAudit(
	ctx context.Context,
	tx *gorm.DB,
	account *accountdomain.LoyaltyAccount,
	staff *accountdomain.Staff,
	entryType ledgerdomain.EntryType,
	count int,
	points int,
	idempotencyKey string,
	userAgent string,
	ipAddress string,
	meta datatypes.JSONMap,
	now time.Time,
) error {
	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	entry := ledgerdomain.LedgerEntry{
		ID:             s.genID.Generate(),
		AccountID:      account.ID,
		StoreID:        account.StoreID,
		StaffID:        staff.ID,
		Type:           entryType,
		Count:          count,
		IdempotencyKey: key,
		UserAgent:      userAgent,
		IPAddress:      ipAddress,
		Metadata:       meta,
		CreatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return errDuplicateRace
		}
		return err
	}

	txType := ledgerdomain.PointsTransactionEarn
	if entryType == ledgerdomain.EntryTypeRedeem {
		txType = ledgerdomain.PointsTransactionRedeem
	}
	var pointsKey *string
	if idempotencyKey != "" {
		k := string(entryType) + ":" + idempotencyKey
		pointsKey = &k
	}
	pointsTx := ledgerdomain.PointsTransaction{
		ID:             s.genID.Generate(),
		AccountID:      account.ID,
		Type:           txType,
		Points:         points,
		IdempotencyKey: pointsKey,
		CreatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(&pointsTx).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return errDuplicateRace
		}
		return err
	}
	return nil
}

func (s *Service) stampDuplicate(ctx context.Context, req ledgerdomain.StampRequest) (ledgerdomain.StampResponse, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, req.AccountID)
	if err != nil {
		return ledgerdomain.StampResponse{}, err
	}
	if account == nil {
		return ledgerdomain.StampResponse{}, ledgerdomain.ErrAccountNotFound
	}
	prior, _, err := s.findPrior(ctx, s.db, req.AccountID, req.IdempotencyKey)
	if err != nil {
		return ledgerdomain.StampResponse{}, err
	}
	s.metrics.IncDuplicate()
	return stampResultRecorded(prior, account), nil
}

func (s *Service) redeemDuplicate(ctx context.Context, req ledgerdomain.RedeemRequest) (ledgerdomain.RedeemResponse, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, req.AccountID)
	if err != nil {
		return ledgerdomain.RedeemResponse{}, err
	}
	if account == nil {
		return ledgerdomain.RedeemResponse{}, ledgerdomain.ErrAccountNotFound
	}
	prior, _, err := s.findPrior(ctx, s.db, req.AccountID, req.IdempotencyKey)
	if err != nil {
		return ledgerdomain.RedeemResponse{}, err
	}
	s.metrics.IncDuplicate()
	return redeemResultRecorded(prior, account), nil
}

// stampResultRecorded replays the result snapshot the matched entry
// recorded at write time. Later operations may have moved the account
// on, so the live row is only a fallback for entries without metadata.
func stampResultRecorded(prior *ledgerdomain.LedgerEntry, account *accountdomain.LoyaltyAccount) ledgerdomain.StampResponse {
	resp := ledgerdomain.StampResponse{
		StampCount:    account.StampCount,
		RewardBalance: account.RewardBalance,
		IsDuplicate:   true,
	}
	if prior == nil {
		return resp
	}
	resp.StampCount = metaInt(prior.Metadata, "stamp_count", resp.StampCount)
	resp.RewardBalance = metaInt(prior.Metadata, "reward_balance", resp.RewardBalance)
	resp.RewardEarned = metaBool(prior.Metadata, "reward_earned")
	return resp
}

func redeemResultRecorded(prior *ledgerdomain.LedgerEntry, account *accountdomain.LoyaltyAccount) ledgerdomain.RedeemResponse {
	resp := ledgerdomain.RedeemResponse{
		StampCount:    account.StampCount,
		RewardBalance: account.RewardBalance,
		IsDuplicate:   true,
	}
	if prior == nil {
		return resp
	}
	resp.StampCount = metaInt(prior.Metadata, "stamp_count", resp.StampCount)
	resp.RewardBalance = metaInt(prior.Metadata, "reward_balance", resp.RewardBalance)
	return resp
}

// JSON numbers round-trip as float64.
func metaInt(meta datatypes.JSONMap, key string, fallback int) int {
	if v, ok := meta[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func metaBool(meta datatypes.JSONMap, key string) bool {
	v, ok := meta[key].(bool)
	return ok && v
}
