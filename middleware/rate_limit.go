package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// loginAttempt tracks login attempts from a single IP
type loginAttempt struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
	locked   bool
}

// LoginRateLimiter limits login attempts per client IP
type LoginRateLimiter struct {
	mu           sync.Mutex
	attempts     map[string]*loginAttempt
	maxAttempts  int
	windowPeriod time.Duration
	lockDuration time.Duration
}

// NewLoginRateLimiter creates a rate limiter allowing maxAttempts failed
// logins per windowPeriod before locking the IP for lockDuration
func NewLoginRateLimiter(maxAttempts int, windowPeriod, lockDuration time.Duration) *LoginRateLimiter {
	rl := &LoginRateLimiter{
		attempts:     make(map[string]*loginAttempt),
		maxAttempts:  maxAttempts,
		windowPeriod: windowPeriod,
		lockDuration: lockDuration,
	}
	go rl.startCleanup()
	return rl
}

func (rl *LoginRateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *LoginRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, attempt := range rl.attempts {
		if attempt.locked && now.Sub(attempt.lockedAt) > rl.lockDuration {
			delete(rl.attempts, ip)
		} else if !attempt.locked && now.Sub(attempt.firstAt) > rl.windowPeriod {
			delete(rl.attempts, ip)
		}
	}
}

// allowed reports whether the IP may attempt a login right now
func (rl *LoginRateLimiter) allowed(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	attempt, exists := rl.attempts[ip]
	if !exists {
		return true
	}

	now := time.Now()
	if attempt.locked {
		if now.Sub(attempt.lockedAt) > rl.lockDuration {
			delete(rl.attempts, ip)
			return true
		}
		return false
	}

	if now.Sub(attempt.firstAt) > rl.windowPeriod {
		delete(rl.attempts, ip)
		return true
	}

	return attempt.count < rl.maxAttempts
}

// RecordFailure records a failed login attempt for the IP
func (rl *LoginRateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, exists := rl.attempts[ip]
	if !exists || now.Sub(attempt.firstAt) > rl.windowPeriod {
		rl.attempts[ip] = &loginAttempt{count: 1, firstAt: now}
		return
	}

	attempt.count++
	if attempt.count >= rl.maxAttempts {
		attempt.locked = true
		attempt.lockedAt = now
	}
}

// RecordSuccess clears the attempt history for the IP
func (rl *LoginRateLimiter) RecordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, ip)
}

// Middleware rejects requests from locked-out IPs with 429
func (rl *LoginRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allowed(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts. Try again later."})
			c.Abort()
			return
		}
		c.Next()
	}
}
