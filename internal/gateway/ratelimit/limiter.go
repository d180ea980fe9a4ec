package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
)

type visitor struct {
	limiter *rate.Limiter
	last    time.Time
}

// Limiter keeps one token bucket per client key. Buckets unused for idleTTL
// are dropped by Sweep.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	clock    clock.Clock
}

// PerMinute allows n requests per minute per client with the given burst.
func PerMinute(n, burst int, idleTTL time.Duration, clk clock.Clock) *Limiter {
	return New(rate.Limit(float64(n)/60), burst, idleTTL, clk)
}

func New(limit rate.Limit, burst int, idleTTL time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Limiter{
		visitors: map[string]*visitor{},
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		clock:    clk,
	}
}

func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.last = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// Sweep drops idle buckets and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.visitors {
		if now.Sub(v.last) > l.idleTTL {
			delete(l.visitors, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
