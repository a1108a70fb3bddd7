package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"parley/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiterStore stores per-address token buckets.
type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	refill   rate.Limit
	burst    int
}

func newRateLimiterStore(burst int, refillEvery time.Duration) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*rate.Limiter),
		refill:   rate.Every(refillEvery),
		burst:    burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(s.refill, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

// clientIP extracts the IP part from the request's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit returns per-IP token bucket middleware with the given shape.
func rateLimit(enabled bool, burst int, refillEvery time.Duration) gin.HandlerFunc {
	if !enabled || burst <= 0 || refillEvery <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := newRateLimiterStore(burst, refillEvery)

	return func(c *gin.Context) {
		limiter := store.getLimiter(clientIP(c.Request))
		if !limiter.Allow() {
			secs := int(refillEvery / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":          "rate limit exceeded",
				"retry_after_ms": refillEvery.Milliseconds(),
			})
			return
		}
		c.Next()
	}
}

// AuthRateLimit shapes the token issuance endpoint, which sees credential
// guessing before anything else does.
func AuthRateLimit(cfg *config.Config) gin.HandlerFunc {
	bucket := cfg.RateLimiting.HTTP.Auth
	return rateLimit(cfg.RateLimiting.Enabled, bucket.Burst, bucket.RefillEvery)
}

// APIRateLimit shapes the general REST surface.
func APIRateLimit(cfg *config.Config) gin.HandlerFunc {
	bucket := cfg.RateLimiting.HTTP.API
	return rateLimit(cfg.RateLimiting.Enabled, bucket.Burst, bucket.RefillEvery)
}

// WSRateLimit shapes WebSocket upgrade attempts.
func WSRateLimit(cfg *config.Config) gin.HandlerFunc {
	bucket := cfg.RateLimiting.HTTP.WS
	return rateLimit(cfg.RateLimiting.Enabled, bucket.Burst, bucket.RefillEvery)
}
