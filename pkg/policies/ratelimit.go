package policies

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/pipeline"
)

const rateLimitLogPrefix = "policies:ratelimit"

// RateLimit rejects calls beyond a per-key token bucket before the target runs.
type RateLimit struct {
	pipeline.Base[struct{}]

	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	// KeyFunc picks the bucket. Defaults to the caller, then the method.
	KeyFunc func(inv *pipeline.Invocation) string
}

// NewRateLimit creates a limiter allowing perSecond calls with the given burst per key.
func NewRateLimit(perSecond float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (p *RateLimit) key(inv *pipeline.Invocation) string {
	if p.KeyFunc != nil {
		return p.KeyFunc(inv)
	}
	if inv.Caller != "" {
		return inv.Caller
	}
	return inv.Method.Key()
}

func (p *RateLimit) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.rate, p.burst)
		p.limiters[key] = l
	}
	return l
}

func (p *RateLimit) PreInvoke(_ context.Context, inv *pipeline.Invocation, _ struct{}) *pipeline.Result {
	key := p.key(inv)
	if p.limiter(key).Allow() {
		return nil
	}
	slog.Warn(fmt.Sprintf("%s - rate limit exceeded for %s on %s", rateLimitLogPrefix, key, inv.Method.Key()))
	return pipeline.Failure(faults.NewRateLimitedError(key))
}

// Cleanup drops the buckets once there are more than maxKeys of them.
func (p *RateLimit) Cleanup(maxKeys int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.limiters) > maxKeys {
		p.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup every interval until ctx ends.
func (p *RateLimit) StartCleanup(ctx context.Context, interval time.Duration, maxKeys int) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Cleanup(maxKeys)
			}
		}
	}()
}
