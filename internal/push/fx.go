package push

import (
	"crypto/ecdsa"

	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/kawhe-app/kawhe/internal/config"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("push.dispatcher",
	fx.Provide(LoadKey),
	fx.Provide(provideTokenCache),
	fx.Provide(provideClient),
	fx.Provide(NewDispatcher),
)

func provideTokenCache(cfg config.Config, key *ecdsa.PrivateKey, clk clock.Clock, metrics *obsmetrics.Metrics) *TokenCache {
	return NewTokenCache(cfg.TeamIdentifier, cfg.APNSKeyID, key, clk, metrics)
}

func provideClient(cfg config.Config, tokens *TokenCache) Pusher {
	return NewClient(cfg.APNSProduction, cfg.PassTypeIdentifier, tokens)
}
