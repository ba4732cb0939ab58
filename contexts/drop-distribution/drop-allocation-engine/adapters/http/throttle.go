package httpadapter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle keeps one token bucket per requester. Buckets idle longer than the
// idle TTL are dropped by the janitor.
type Throttle struct {
	mu           sync.Mutex
	buckets      map[string]*throttleBucket
	limit        rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type throttleBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ThrottleOption func(*Throttle)

func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.cleanupEvery = d }
}

func withNow(now func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.now = now }
}

func NewThrottle(perSecond float64, burst int, opts ...ThrottleOption) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		buckets:      make(map[string]*throttleBucket),
		limit:        rate.Limit(perSecond),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow reports whether the requester may issue another command now. A nil
// Throttle allows everything.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	now := t.now()

	t.mu.Lock()
	bucket, ok := t.buckets[key]
	if !ok {
		bucket = &throttleBucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = bucket
	}
	bucket.lastSeen = now
	t.mu.Unlock()

	return bucket.limiter.AllowN(now, 1)
}

// Sweep removes buckets not used within the idle TTL.
func (t *Throttle) Sweep() {
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, bucket := range t.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
}

// StartJanitor sweeps idle buckets until ctx is cancelled.
func (t *Throttle) StartJanitor(ctx context.Context) {
	if t == nil || t.cleanupEvery <= 0 {
		return
	}
	ticker := time.NewTicker(t.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

func (t *Throttle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
