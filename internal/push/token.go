package push

import (
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/kawhe-app/kawhe/internal/clock"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
)

// Provider tokens are accepted for about an hour; refreshing at 50
// minutes leaves a safety margin.
const tokenRefreshAge = 50 * time.Minute

// TokenCache holds the current signed provider token with its issue
// time. State is process-local; each worker regenerates independently
// at the cost of one extra signing operation.
type TokenCache struct {
	mu sync.Mutex

	teamID  string
	keyID   string
	key     *ecdsa.PrivateKey
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	value    string
	issuedAt time.Time
}

func NewTokenCache(teamID, keyID string, key *ecdsa.PrivateKey, clk clock.Clock, metrics *obsmetrics.Metrics) *TokenCache {
	return &TokenCache{
		teamID:  teamID,
		keyID:   keyID,
		key:     key,
		clock:   clk,
		metrics: metrics,
	}
}

// Bearer returns a valid provider token, re-signing when the cached
// one is past its refresh age.
func (c *TokenCache) Bearer() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.needsRefreshAt(now) {
		return c.value, nil
	}

	token, err := Sign(Claims{Issuer: c.teamID, IssuedAt: now.Unix()}, c.key, c.keyID)
	if err != nil {
		return "", err
	}

	c.value = token
	c.issuedAt = now
	c.metrics.IncTokenRefresh()
	return token, nil
}

// NeedsRefreshAt reports whether the cached token would be re-signed
// at the given instant. Exposed so expiry logic is testable without
// timing hacks.
func (c *TokenCache) NeedsRefreshAt(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsRefreshAt(at)
}

func (c *TokenCache) needsRefreshAt(at time.Time) bool {
	if c.value == "" {
		return true
	}
	return at.Sub(c.issuedAt) > tokenRefreshAge
}
