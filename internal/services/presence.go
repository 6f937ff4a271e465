package services

import (
	"context"
	"time"

	"github.com/lgrondin/tchatbox-backend/internal/database"
)

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 90 * time.Second
)

// TouchPresence mirrors "online" into Redis with a TTL. Refreshed on bind and
// on every client ping; purely informational (the hub map is authoritative),
// so failures are swallowed and a nil client is fine in tests.
func TouchPresence(pseudo string) {
	if database.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = database.RedisClient.Set(ctx, presenceKeyPrefix+pseudo, "online", presenceTTL).Err()
}

// ClearPresence drops the mirror entry on unbind.
func ClearPresence(pseudo string) {
	if database.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = database.RedisClient.Del(ctx, presenceKeyPrefix+pseudo).Err()
}
