package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2)

	assert.True(t, limiter.Allow("api.example.com"))
	assert.True(t, limiter.Allow("api.example.com"))
	assert.False(t, limiter.Allow("api.example.com"), "burst is spent")
}

func TestLimiter_MultipleHosts(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	assert.True(t, limiter.Allow("host1"))
	assert.True(t, limiter.Allow("host2"))
	assert.False(t, limiter.Allow("host1"))
	assert.False(t, limiter.Allow("host2"))
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("host"))
	}
	assert.Equal(t, time.Duration(0), limiter.Delay())
}

func TestLimiter_WaitTimeout(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	require.True(t, limiter.Allow("host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "host"))
}

func TestLimiter_SetRPS(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	require.True(t, limiter.Allow("host"))
	require.False(t, limiter.Allow("host"))

	limiter.SetRPS(0)
	assert.True(t, limiter.Allow("host"))
	assert.Equal(t, 100*time.Millisecond, NewLimiter(10, 1).Delay())
}

func TestLimiter_ConcurrentHosts(t *testing.T) {
	limiter := NewLimiter(100, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Wait(context.Background(), "shared")
		}()
	}
	wg.Wait()

	stats := limiter.Stats()
	require.Contains(t, stats, "shared")
	assert.Equal(t, 5, stats["shared"].Burst)
}
