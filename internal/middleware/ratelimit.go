package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiter is how long a caller's limiter is kept after its last request.
const idleLimiter = 10 * time.Minute

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per authenticated caller.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*callerLimiter
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*callerLimiter),
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = &callerLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now

	for k, other := range rl.limiters {
		if now.Sub(other.lastSeen) > idleLimiter {
			delete(rl.limiters, k)
		}
	}
	return l.limiter.AllowN(now, 1)
}

// Middleware limits per caller. It must run after authentication; unauthenticated requests are
// keyed by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if caller, ok := GetCaller(c); ok {
			key = caller.UserID
		}
		if !rl.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "message": "Too many requests"})
			return
		}
		c.Next()
	}
}
