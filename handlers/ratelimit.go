package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedIPs bounds the limiter map; past it the map is cleared.
const maxTrackedIPs = 10000

// rateLimiter counts failed attempts per client IP in a token bucket:
// attempts failures are allowed per window, refilled evenly.
type rateLimiter struct {
	sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newRateLimiter(attempts int, window time.Duration) *rateLimiter {
	if attempts < 1 {
		attempts = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(attempts)),
		burst:    attempts,
	}
}

// Allow returns false while the IP has no attempts left.
func (r *rateLimiter) Allow(ip string) bool {
	r.Lock()
	defer r.Unlock()

	l, ok := r.limiters[ip]
	if !ok {
		return true
	}
	return l.Tokens() >= 1
}

// RecordFailure spends one attempt.
func (r *rateLimiter) RecordFailure(ip string) {
	r.Lock()
	defer r.Unlock()

	// Naive cleanup: just clear it. This allows a window of bypass but
	// bounds memory.
	if len(r.limiters) > maxTrackedIPs {
		r.limiters = make(map[string]*rate.Limiter)
	}

	l, ok := r.limiters[ip]
	if !ok {
		l = rate.NewLimiter(r.every, r.burst)
		r.limiters[ip] = l
	}
	l.Allow()
}

// Reset clears the counter for an IP (used on successful login).
func (r *rateLimiter) Reset(ip string) {
	r.Lock()
	defer r.Unlock()
	delete(r.limiters, ip)
}

func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
