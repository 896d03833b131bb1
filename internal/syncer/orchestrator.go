// Package syncer bridges ledger mutations to wallet refresh: after a
// commit it schedules a push fan-out for the account's pass, keeping
// notification failures away from ledger correctness.
package syncer

import (
	"context"

	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/push"
	"github.com/kawhe-app/kawhe/internal/serial"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Orchestrator struct {
	log        *zap.Logger
	cfg        config.Config
	dispatcher *push.Dispatcher
}

type OrchestratorParams struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Dispatcher *push.Dispatcher
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		log:        p.Log.Named("syncer"),
		cfg:        p.Cfg,
		dispatcher: p.Dispatcher,
	}
}

// SyncLoyaltyAccount pushes a pass-update notification to every device
// registered for the account. Dispatch errors are logged and swallowed;
// they must never reach the ledger mutation that triggered the sync.
func (o *Orchestrator) SyncLoyaltyAccount(ctx context.Context, account accountdomain.LoyaltyAccount) {
	serialNumber := serial.Encode(account.StoreID, account.CustomerID)

	result, err := o.dispatcher.SendPassUpdate(ctx, o.cfg.PassTypeIdentifier, serialNumber)
	if err != nil {
		o.log.Error("wallet sync failed",
			zap.String("serial", serialNumber),
			zap.Error(err),
		)
		return
	}
	o.log.Debug("wallet sync complete",
		zap.String("serial", serialNumber),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
	)
}
