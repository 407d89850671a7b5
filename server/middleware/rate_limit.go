// Package middleware holds request-level guards for the webhook server.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SenderLimiter throttles inbound messages per sender so one noisy user
// cannot starve the bot.
type SenderLimiter struct {
	mu       sync.Mutex
	limits   map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
	lastSeen map[string]time.Time
}

// NewSenderLimiter creates a limiter allowing perSec messages per sender with
// the given burst.
func NewSenderLimiter(perSec float64, burst int) *SenderLimiter {
	return &SenderLimiter{
		limits:   make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSec),
		burst:    burst,
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether a message from the sender may proceed now.
func (sl *SenderLimiter) Allow(senderID string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	limiter, ok := sl.limits[senderID]
	if !ok {
		limiter = rate.NewLimiter(sl.perSec, sl.burst)
		sl.limits[senderID] = limiter
		sl.sweepLocked()
	}
	sl.lastSeen[senderID] = time.Now()
	return limiter.Allow()
}

// sweepLocked drops limiters idle for over an hour so the map stays bounded.
func (sl *SenderLimiter) sweepLocked() {
	cutoff := time.Now().Add(-time.Hour)
	for id, seen := range sl.lastSeen {
		if seen.Before(cutoff) {
			delete(sl.lastSeen, id)
			delete(sl.limits, id)
		}
	}
}
