// File: internal/infra/api/ratelimit.go
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rollingpi/internal/domain"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter is a token bucket per client IP for the unauthenticated routes.
type IPLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	log   *zerolog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewIPLimiter(rps float64, burst int, logger *zerolog.Logger) *IPLimiter {
	l := logger.With().Str("component", "IPLimiter").Logger()
	return &IPLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    15 * time.Minute,
		log:     &l,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *IPLimiter) allow(ip string) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	lim := c.limiter
	l.mu.Unlock()
	return lim.Allow()
}

// Prune forgets clients idle for longer than the idle window.
func (l *IPLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for ip, c := range l.clients {
		if time.Since(c.lastSeen) > l.idle {
			delete(l.clients, ip)
			n++
		}
	}
	return n
}

// Run prunes every interval until ctx ends.
func (l *IPLimiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Prune(); n > 0 {
				l.log.Debug().Int("pruned", n).Msg("idle limiters removed")
			}
		}
	}
}

func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			l.log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
			writeError(w, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
