package proxy

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/srg/healthlink/internal/groutine"
	"github.com/srg/healthlink/pkg/config"
)

// Stale client limiters are dropped after this long without a request.
const (
	limiterIdleTTL     = 3 * time.Minute
	limiterSweepPeriod = time.Minute
)

// SecurityHeaders adds the standard hardening headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client IP.
type limiterSet struct {
	cfg     config.RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func newLimiterSet(cfg config.RateLimitConfig) *limiterSet {
	return &limiterSet{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (s *limiterSet) allow(ip string) bool {
	s.mu.Lock()
	c, ok := s.clients[ip]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerMin)/60.0, s.cfg.BurstSize),
		}
		s.clients[ip] = c
	}
	c.lastSeen = s.now()
	limiter := c.limiter
	s.mu.Unlock()

	return limiter.Allow()
}

// sweep drops clients idle for longer than ttl and returns how many were removed.
func (s *limiterSet) sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := s.now().Add(-ttl)
	for ip, c := range s.clients {
		if c.lastSeen.Before(cutoff) {
			delete(s.clients, ip)
			removed++
		}
	}
	return removed
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimit applies a per-client token bucket. Proxy headers are honoured only when
// the direct peer is listed in cfg.TrustedProxies. The janitor stops with ctx.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig, logger *logrus.Logger) func(http.Handler) http.Handler {
	set := newLimiterSet(cfg)

	groutine.Go(ctx, "proxy-ratelimit-janitor", func(ctx context.Context) {
		ticker := time.NewTicker(limiterSweepPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := set.sweep(limiterIdleTTL); n > 0 && logger != nil {
					logger.WithField("removed", n).Debug("Dropped idle rate limiters")
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustedProxies)
			if !set.allow(ip) {
				if logger != nil {
					logger.WithField("client", ip).Warn("Rate limit exceeded")
				}
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the direct peer address unless it is a trusted proxy, in which case
// the first X-Forwarded-For entry (or X-Real-IP) wins.
func clientIP(r *http.Request, trustedProxies []string) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	if !slices.Contains(trustedProxies, directIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return directIP
}
