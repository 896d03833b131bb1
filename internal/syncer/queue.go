package syncer

import (
	"context"

	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"go.uber.org/zap"
)

const defaultQueueDepth = 256

// Queue is the in-process background task queue between the ledger and
// the orchestrator. Enqueue never blocks the request path; when the
// queue is saturated the sync is dropped and logged, since the wallet
// client will still pull fresh state on its next fetch.
type Queue struct {
	log          *zap.Logger
	orchestrator *Orchestrator

	ch chan accountdomain.LoyaltyAccount
}

func NewQueue(log *zap.Logger, orchestrator *Orchestrator) *Queue {
	return &Queue{
		log:          log.Named("syncer.queue"),
		orchestrator: orchestrator,
		ch:           make(chan accountdomain.LoyaltyAccount, defaultQueueDepth),
	}
}

// EnqueueSync schedules a wallet sync for the account.
func (q *Queue) EnqueueSync(account accountdomain.LoyaltyAccount) {
	select {
	case q.ch <- account:
	default:
		q.log.Warn("sync queue full, dropping wallet sync",
			zap.String("account_id", account.ID.String()),
		)
	}
}

// Run consumes queued syncs until the context is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case account := <-q.ch:
			q.orchestrator.SyncLoyaltyAccount(ctx, account)
		}
	}
}

// Drain processes anything still queued, for orderly shutdown and tests.
func (q *Queue) Drain(ctx context.Context) {
	for {
		select {
		case account := <-q.ch:
			q.orchestrator.SyncLoyaltyAccount(ctx, account)
		default:
			return
		}
	}
}
