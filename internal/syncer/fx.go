package syncer

import (
	"context"

	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("syncer",
	fx.Provide(NewOrchestrator),
	fx.Provide(NewQueue),
	fx.Provide(func(q *Queue) ledgerdomain.Syncer { return q }),
	fx.Invoke(runQueue),
)

func runQueue(lc fx.Lifecycle, q *Queue) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go q.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			q.Drain(stopCtx)
			cancel()
			return nil
		},
	})
}
