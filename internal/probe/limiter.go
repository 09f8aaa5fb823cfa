package probe

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter applies a token-bucket rate limit per target host so staggered
// batches never hammer a single directory, even when the catalog lists
// several entries on one domain.
type HostLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewHostLimiter creates a limiter. rps <= 0 disables limiting.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
