package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, time.Second)
	limiter.now = func() time.Time { return now }

	req.True(limiter.Allow("c1"))
	req.True(limiter.Allow("c1"))
	req.False(limiter.Allow("c1"))
	// Keys are independent
	req.True(limiter.Allow("c2"))

	now = now.Add(1500 * time.Millisecond)
	req.True(limiter.Allow("c1"))
}

func TestRateLimiter_Forget(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(1, time.Minute)

	req.True(limiter.Allow("c1"))
	req.False(limiter.Allow("c1"))
	limiter.Forget("c1")
	req.True(limiter.Allow("c1"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(0, time.Minute)

	for i := 0; i < 100; i++ {
		req.True(limiter.Allow("c1"))
	}
}
