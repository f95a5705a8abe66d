package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/apptly/apptly/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter caps requests per remote address over a fixed window, on top
// of the OTP engine's own per-identity attempt counters. Backed by Redis so
// the cap holds across replicas; fails open when Redis is unreachable.
type RateLimiter struct {
	client *redis.Client
	cfg    *config.RateLimitConfig
	logger *logrus.Logger
}

func NewRateLimiter(client *redis.Client, cfg *config.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, clientIP(r))

		count, err := l.client.Incr(r.Context(), key).Result()
		if err != nil {
			l.logger.WithError(err).Warn("Rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			l.client.Expire(r.Context(), key, l.cfg.Window)
		}

		if count > int64(l.cfg.Requests) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"Too many requests. Please slow down."}}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
