// ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dalemusser/contactrelay/httputil"
	"golang.org/x/time/rate"
)

// KeyLimiter provides per-key token buckets (e.g., per client IP).
// Idle keys are dropped after ttl.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter creates a limiter allowing perMinute requests per key per
// minute with the given burst. Call Close to stop the cleanup goroutine.
func NewKeyLimiter(perMinute float64, burst int, ttl time.Duration) *KeyLimiter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if burst < 1 {
		burst = 1
	}
	kl := &KeyLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go kl.cleanup()
	return kl
}

// Allow reports whether a request for key may proceed now, consuming a token.
func (kl *KeyLimiter) Allow(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RetryAfter returns how long key must wait for its next token.
func (kl *KeyLimiter) RetryAfter(key string) time.Duration {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.limiters[key]
	if !ok {
		return 0
	}
	now := kl.now()
	r := e.limiter.ReserveN(now, 1)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Size returns the number of tracked keys.
func (kl *KeyLimiter) Size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// Close stops the cleanup goroutine.
func (kl *KeyLimiter) Close() {
	kl.stopOnce.Do(func() { close(kl.stop) })
}

func (kl *KeyLimiter) cleanup() {
	ticker := time.NewTicker(kl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stop:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

func (kl *KeyLimiter) sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	now := kl.now()
	for key, e := range kl.limiters {
		if now.Sub(e.lastSeen) > kl.ttl {
			delete(kl.limiters, key)
		}
	}
}

// KeyFunc extracts a key from an HTTP request for rate limiting.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns the host part of RemoteAddr. Forwarding headers are not
// consulted here; chi's RealIP middleware rewrites RemoteAddr when the
// service is configured to trust its proxy.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DefaultMessage is the envelope message for a flood-limited request.
const DefaultMessage = "Too many requests. Please try again later."

// Config configures the rate limit middleware.
type Config struct {
	// KeyFunc defaults to IPKeyFunc.
	KeyFunc KeyFunc

	// Message defaults to DefaultMessage.
	Message string

	// OnLimited is called for every rejected request, before the response
	// is written. Use it for logging and metrics.
	OnLimited func(r *http.Request, key string)
}

// Middleware rejects requests over limiter's rate with a JSON 429 and a
// Retry-After header. The caller owns limiter and closes it.
func Middleware(limiter *KeyLimiter, cfg Config) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPKeyFunc
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if !limiter.Allow(key) {
				if cfg.OnLimited != nil {
					cfg.OnLimited(r, key)
				}
				secs := int(limiter.RetryAfter(key).Seconds() + 0.999)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				httputil.Error(w, http.StatusTooManyRequests, cfg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
