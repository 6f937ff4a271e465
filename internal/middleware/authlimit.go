package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-IP limiter for in-band register/login attempts on the WebSocket
// channel. One attempt per 5s with a small burst; entries are dropped after
// 30 minutes of inactivity.

const (
	authAttemptEvery    = 5 * time.Second
	authAttemptBurst    = 3
	authCleanupInterval = 5 * time.Minute
	authLimiterTTL      = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

var (
	authEntries    = make(map[string]*limiterEntry)
	authEntriesMu  sync.Mutex
	authCleanupRun bool
)

// AuthAttemptAllowed reports whether another register/login attempt from the
// IP is allowed right now.
func AuthAttemptAllowed(ip string) bool {
	return getAuthLimiter(ip).Allow()
}

func getAuthLimiter(ip string) *rate.Limiter {
	authEntriesMu.Lock()
	defer authEntriesMu.Unlock()
	startAuthCleanupOnce()
	e, ok := authEntries[ip]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(authAttemptEvery), authAttemptBurst),
			lastUse: time.Now(),
		}
		authEntries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startAuthCleanupOnce() {
	if authCleanupRun {
		return
	}
	authCleanupRun = true
	go func() {
		ticker := time.NewTicker(authCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			authEntriesMu.Lock()
			now := time.Now()
			for ip, e := range authEntries {
				if now.Sub(e.lastUse) > authLimiterTTL {
					delete(authEntries, ip)
				}
			}
			authEntriesMu.Unlock()
		}
	}()
}
