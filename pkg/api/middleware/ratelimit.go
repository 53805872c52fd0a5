package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/mempoolwatch/internal/constants"
)

// clientLimiter pairs one client's token bucket with its last traffic
// time so idle entries can be pruned.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client request rate, keyed by client IP.
// Idle clients are pruned amortized on the request path; there is no
// background goroutine.
type RateLimiter struct {
	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastPrune time.Time

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewRateLimiter creates a per-IP rate limiter.
func NewRateLimiter(perSecond float64, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		rate:      rate.Limit(perSecond),
		burst:     burst,
		idleTTL:   constants.DefaultLimiterIdleTTL,
		logger:    logger,
		clients:   make(map[string]*clientLimiter),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether one more request from the client is within its
// rate, creating the client's bucket on first sight.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) >= rl.idleTTL {
		rl.pruneIdle(now)
	}

	client, ok := rl.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = client
	}
	client.lastSeen = now

	return client.limiter.Allow()
}

// pruneIdle drops clients without traffic for idleTTL. Called with mu
// held.
func (rl *RateLimiter) pruneIdle(now time.Time) {
	cutoff := now.Add(-rl.idleTTL)
	for ip, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
	rl.lastPrune = now
}

// ActiveClients returns how many clients currently hold a bucket.
func (rl *RateLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimit returns a middleware that answers 429 once a client
// exceeds its per-IP rate.
func RateLimit(perSecond float64, burst int, logger *zap.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)

			if !limiter.Allow(ip) {
				limiter.logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","message":"too many requests, please retry later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP resolves the client IP: X-Forwarded-For (leftmost
// entry), then X-Real-IP, then RemoteAddr without the port. Header
// values that do not parse as IPs are ignored rather than trusted.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
