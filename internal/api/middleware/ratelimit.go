package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client. Idle buckets expire.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per client with the given burst
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(10*time.Minute, 10*time.Minute),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow reports whether client may make a request now
func (l *RateLimiter) Allow(client string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// refresh the expiry on every use
	l.limiters.SetDefault(client, limiter)
	l.mu.Unlock()

	return limiter.(*rate.Limiter).Allow()
}

// Middleware rejects requests over the limit with 429. Authenticated users
// are limited by user id and anonymous ones by client address. The server's
// own requests are not limited. It must run after Auth.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserID(c)
		if user == InternalUserID {
			c.Next()
			return
		}

		client := "ip:" + c.ClientIP()
		if user != LocalUserID {
			client = "user:" + user
		}
		if !l.Allow(client) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": domain.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}
