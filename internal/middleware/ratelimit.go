package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware implements token bucket rate limiting. Rollup queries
// get their own bucket since a single dashboard refresh fans out several of
// them; management endpoints share a second, looser bucket.
type RateLimitMiddleware struct {
	cfg           config.RateLimitConfig
	logger        *zap.Logger
	metrics       *metrics.Metrics
	rollupLimiter *rate.Limiter
	mgmtLimiter   *rate.Limiter

	// Per-IP limiters for more granular control
	mu         sync.RWMutex
	ipLimiters map[string]*rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:           cfg,
		logger:        logger,
		rollupLimiter: rate.NewLimiter(rate.Limit(cfg.RollupRPS), cfg.RollupBurst),
		mgmtLimiter:   rate.NewLimiter(rate.Limit(cfg.MgmtRPS), cfg.MgmtBurst),
		ipLimiters:    make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		var limiter *rate.Limiter
		if rl.isRollupEndpoint(r.URL.Path) {
			limiter = rl.rollupLimiter
		} else {
			limiter = rl.mgmtLimiter
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(r.URL.Path, rl.getClientIP(r))
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandlerPerIP applies per-IP rate limiting (more aggressive).
func (rl *RateLimitMiddleware) HandlerPerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := rl.getClientIP(r)
		limiter := rl.getIPLimiter(ip)

		if !limiter.Allow() {
			rl.logger.Warn("per-IP rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getIPLimiter returns or creates a rate limiter for the given IP.
func (rl *RateLimitMiddleware) getIPLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.ipLimiters[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = rl.ipLimiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.cfg.MgmtRPS/10), rl.cfg.MgmtBurst/10+1)
	rl.ipLimiters[ip] = limiter

	return limiter
}

// getClientIP extracts the client IP from the request.
func (rl *RateLimitMiddleware) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// isRollupEndpoint returns true if the path serves rollup queries.
func (rl *RateLimitMiddleware) isRollupEndpoint(path string) bool {
	return strings.HasPrefix(path, "/api/v1/rollup")
}

// tooManyRequests sends a 429 response.
func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}

// CleanupIPLimiters removes old IP limiters to prevent memory leaks.
// Should be called periodically (e.g., every hour).
func (rl *RateLimitMiddleware) CleanupIPLimiters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.ipLimiters = make(map[string]*rate.Limiter)
	rl.logger.Debug("cleaned up IP rate limiters")
}

// Janitor drops the per-IP limiters on an interval so the map cannot grow
// without bound. Runs for the life of the process.
func (rl *RateLimitMiddleware) Janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		rl.CleanupIPLimiters()
	}
}
