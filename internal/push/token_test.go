package push

import (
	"testing"
	"time"

	"github.com/kawhe-app/kawhe/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerCachesUntilRefreshAge(t *testing.T) {
	key := generateKey(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewTokenCache("TEAM123456", "KEY1234567", key, clk, nil)

	first, err := cache.Bearer()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Within the refresh window the exact same token is reused.
	clk.Advance(49 * time.Minute)
	second, err := cache.Bearer()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, cache.NeedsRefreshAt(clk.Now()))

	// Past 50 minutes the cache re-signs.
	clk.Advance(2 * time.Minute)
	assert.True(t, cache.NeedsRefreshAt(clk.Now()))
	third, err := cache.Bearer()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.False(t, cache.NeedsRefreshAt(clk.Now()))
}

func TestBearerWithoutKey(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewTokenCache("TEAM123456", "KEY1234567", nil, clk, nil)

	_, err := cache.Bearer()
	assert.ErrorIs(t, err, ErrSigningKeyUnavailable)
}
