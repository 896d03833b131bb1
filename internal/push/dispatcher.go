package push

import (
	"context"
	"errors"
	"time"

	"github.com/kawhe-app/kawhe/internal/clock"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DispatchResult aggregates the per-device outcomes of one fan-out.
type DispatchResult struct {
	Delivered   int
	Failed      int
	Deactivated int
}

// Dispatcher fans a pass update out to every active registration for a
// serial. Deliveries are attempted independently: one failing device
// never aborts delivery to the others.
type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    registrationdomain.Repository
	pusher  Pusher
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

type DispatcherParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    registrationdomain.Repository
	Pusher  Pusher
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:      p.DB,
		log:     p.Log.Named("push.dispatcher"),
		repo:    p.Repo,
		pusher:  p.Pusher,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// SendPassUpdate notifies every active registration for (passType,
// serial). A missing signing key aborts the whole batch; individual
// delivery failures are recorded and skipped.
func (d *Dispatcher) SendPassUpdate(ctx context.Context, passType, serial string) (DispatchResult, error) {
	start := time.Now()
	var result DispatchResult

	regs, err := d.repo.FindActiveBySerial(ctx, d.db, passType, serial)
	if err != nil {
		return result, err
	}

	for _, reg := range regs {
		err := d.pusher.Push(ctx, reg.PushToken)
		if err == nil {
			result.Delivered++
			d.metrics.IncPushDelivered()
			continue
		}

		if errors.Is(err, ErrSigningKeyUnavailable) {
			// Without a key no delivery in this batch can succeed.
			d.log.Error("push batch aborted, signing key unavailable",
				zap.String("serial", serial),
				zap.String("topic", passType),
			)
			return result, err
		}

		result.Failed++

		var gone *DeviceTokenInvalidError
		if errors.As(err, &gone) {
			result.Deactivated++
			d.metrics.IncExpiredToken()
			d.metrics.IncPushFailed("token_invalid")
			if derr := d.repo.DeactivateByPushToken(ctx, d.db, passType, serial, reg.PushToken, d.clock.Now()); derr != nil {
				d.log.Error("failed to deactivate stale registration",
					zap.String("serial", serial),
					zap.String("device", reg.DeviceLibraryIdentifier),
					zap.Error(derr),
				)
			} else {
				d.log.Info("deactivated stale registration",
					zap.String("serial", serial),
					zap.String("device", reg.DeviceLibraryIdentifier),
				)
			}
			continue
		}

		var rejected *GatewayError
		if errors.As(err, &rejected) {
			d.metrics.IncPushFailed("gateway_rejected")
			d.log.Error("push gateway rejected delivery",
				zap.Int("status", rejected.Status),
				zap.String("reason", rejected.Reason),
				zap.String("topic", passType),
				zap.String("serial", serial),
				zap.String("device", reg.DeviceLibraryIdentifier),
			)
			continue
		}

		d.metrics.IncPushFailed("transport")
		d.log.Error("push delivery failed",
			zap.String("serial", serial),
			zap.String("device", reg.DeviceLibraryIdentifier),
			zap.Error(err),
		)
	}

	d.metrics.ObserveDispatch(time.Since(start).Seconds())
	d.log.Info("pass update dispatched",
		zap.String("serial", serial),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
		zap.Int("deactivated", result.Deactivated),
	)
	return result, nil
}
