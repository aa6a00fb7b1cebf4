package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate is a keyed token-bucket throttle. Idle buckets are evicted lazily.
type Rate struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRate allows rps events per second per key with the given burst.
// A non-positive rps disables throttling.
func NewRate(rps float64, burst int) *Rate {
	if burst < 1 {
		burst = 1
	}
	return &Rate{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (r *Rate) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		r.evict(now)
		b = &bucket{lim: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (r *Rate) evict(now time.Time) {
	for k, b := range r.buckets {
		if now.Sub(b.seen) > r.idleTTL {
			delete(r.buckets, k)
		}
	}
}

// Len reports the number of tracked keys.
func (r *Rate) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
