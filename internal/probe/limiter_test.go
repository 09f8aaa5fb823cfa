package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostLimiter_DisabledWhenRateNonPositive(t *testing.T) {
	t.Parallel()

	limiter := NewHostLimiter(0, 0)
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, limiter.Wait(context.Background(), "https://a.example/page"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestHostLimiter_SeparateBucketsPerHost(t *testing.T) {
	t.Parallel()

	limiter := NewHostLimiter(1, 1)

	// First request per host consumes the burst token without waiting.
	for _, u := range []string{"https://a.example/x", "https://b.example/y", "https://c.example/z"} {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		require.NoError(t, limiter.Wait(ctx, u))
		cancel()
	}
}

func TestHostLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	limiter := NewHostLimiter(0.1, 1)
	require.NoError(t, limiter.Wait(context.Background(), "https://slow.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx, "https://slow.example/")
	require.Error(t, err, "second token would take ten seconds")
}
