// Package server implements a token bucket rate limiter for per-client
// throttling that protects the hub from publish floods.
package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	return newRateLimiterWithClock(capacity, interval, time.Now)
}

func newRateLimiterWithClock(capacity int, interval time.Duration, now func() time.Time) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: now(),
		now:       now,
	}
}

func (rl *rateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}

// idle reports whether the bucket has refilled completely, meaning the
// client has not published for at least one refill interval.
func (rl *rateLimiter) idle() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens >= rl.capacity
}

// sweepThreshold is the number of tracked clients above which idle buckets
// are dropped.
const sweepThreshold = 1024

// limiterSet keeps one token bucket per client address.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	cfg      RateLimitConfig
	now      func() time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*rateLimiter),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (ls *limiterSet) allow(key string) bool {
	ls.mu.Lock()
	rl, ok := ls.limiters[key]
	if !ok {
		if len(ls.limiters) >= sweepThreshold {
			ls.sweepLocked()
		}
		rl = newRateLimiterWithClock(ls.cfg.Burst, ls.cfg.RefillInterval, ls.now)
		ls.limiters[key] = rl
	}
	ls.mu.Unlock()

	return rl.allow()
}

func (ls *limiterSet) sweepLocked() {
	for key, rl := range ls.limiters {
		if rl.idle() {
			delete(ls.limiters, key)
		}
	}
}

func (ls *limiterSet) size() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.limiters)
}

// clientKey identifies the caller by remote host, ignoring the source port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
