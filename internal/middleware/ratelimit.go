package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lgrondin/tchatbox-backend/internal/database"
	"github.com/lgrondin/tchatbox-backend/pkg/clientip"
)

const (
	// RateLimitWindow is the fixed counting window per IP.
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of HTTP requests per window.
	RateLimitMaxRequests = 60
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting.
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs.
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked.
	BlockedIPDuration = 24 * time.Hour
)

// RateLimitMiddleware provides Redis-backed per-IP rate limiting with
// temporary IP blocking for repeat offenders. WebSocket upgrades count as a
// single request; in-band auth attempts are limited separately.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if database.RedisClient == nil {
			next.ServeHTTP(w, r)
			return
		}

		ipAddress := clientip.FromRequest(r)
		ctx := context.Background()

		blockedKey := BlockedIPKeyPrefix + ipAddress
		if blocked, err := database.RedisClient.Exists(ctx, blockedKey).Result(); err == nil && blocked > 0 {
			writeTooMany(w, "Your IP has been temporarily blocked due to excessive requests.")
			return
		}

		// INCR + EXPIRE NX in one pipeline: concurrent requests from the same
		// IP each get a distinct count and the window TTL is set exactly once.
		rateLimitKey := RateLimitKeyPrefix + ipAddress
		pipe := database.RedisClient.TxPipeline()
		count := pipe.Incr(ctx, rateLimitKey)
		pipe.ExpireNX(ctx, rateLimitKey, RateLimitWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			// Redis hiccup: let the request through rather than lock everyone out.
			next.ServeHTTP(w, r)
			return
		}

		if count.Val() > RateLimitMaxRequests {
			reason := fmt.Sprintf("exceeded %d requests in %s", RateLimitMaxRequests, RateLimitWindow)
			_ = database.RedisClient.Set(ctx, blockedKey, reason, BlockedIPDuration).Err()
			writeTooMany(w, "Too many requests. Your IP has been temporarily blocked.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeTooMany(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"success":false,"message":"` + msg + `"}`))
}
