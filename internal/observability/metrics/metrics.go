package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerOps       *prometheus.CounterVec
	duplicateOps    prometheus.Counter
	pushesSent      prometheus.Counter
	pushesFailed    *prometheus.CounterVec
	expiredTokens   prometheus.Counter
	registrations   *prometheus.CounterVec
	passDownloads   prometheus.Counter
	tokenRefreshes  prometheus.Counter
	dispatchSeconds prometheus.Histogram
}

// New registers the loyalty and wallet instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		ledgerOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kawhe_ledger_operations_total",
			Help: "Ledger operations applied, by type and outcome.",
		}, []string{"type", "outcome"}),
		duplicateOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kawhe_ledger_duplicate_submissions_total",
			Help: "Operations short-circuited by an idempotency key match.",
		}),
		pushesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kawhe_push_delivered_total",
			Help: "Background pushes accepted by the gateway.",
		}),
		pushesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kawhe_push_failed_total",
			Help: "Push deliveries rejected by the gateway, by reason.",
		}, []string{"reason"}),
		expiredTokens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kawhe_push_expired_tokens_total",
			Help: "Registrations deactivated after a 410 from the gateway.",
		}),
		registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kawhe_wallet_registrations_total",
			Help: "Wallet device registration operations, by action.",
		}, []string{"action"}),
		passDownloads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kawhe_wallet_pass_downloads_total",
			Help: "Pass binaries served to wallet clients.",
		}),
		tokenRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kawhe_push_token_refreshes_total",
			Help: "Provider auth tokens signed, including refreshes.",
		}),
		dispatchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kawhe_push_dispatch_duration_seconds",
			Help:    "Duration of one pass-update fan-out batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncLedgerOp(opType, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(opType, outcome).Inc()
}

func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.duplicateOps.Inc()
}

func (m *Metrics) IncPushDelivered() {
	if m == nil {
		return
	}
	m.pushesSent.Inc()
}

func (m *Metrics) IncPushFailed(reason string) {
	if m == nil {
		return
	}
	m.pushesFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncExpiredToken() {
	if m == nil {
		return
	}
	m.expiredTokens.Inc()
}

func (m *Metrics) IncRegistration(action string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(action).Inc()
}

func (m *Metrics) IncPassDownload() {
	if m == nil {
		return
	}
	m.passDownloads.Inc()
}

func (m *Metrics) IncTokenRefresh() {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc()
}

func (m *Metrics) ObserveDispatch(seconds float64) {
	if m == nil {
		return
	}
	m.dispatchSeconds.Observe(seconds)
}
