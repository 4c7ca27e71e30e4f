package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// WriteRateLimit limits admin writes per caller with a token bucket.
// Callers are keyed by user_id (set by AdminAuthMiddleware), else client IP.
func WriteRateLimit(rps float64, burst int) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		limiters  = make(map[string]*visitor)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := c.GetString("user_id")
		if key == "" {
			key = c.ClientIP()
		}

		now := time.Now()
		mu.Lock()
		if now.Sub(lastSweep) > time.Minute {
			for k, v := range limiters {
				if now.Sub(v.seen) > 10*time.Minute {
					delete(limiters, k)
				}
			}
			lastSweep = now
		}
		v, ok := limiters[key]
		if !ok {
			v = &visitor{lim: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[key] = v
		}
		v.seen = now
		allowed := v.lim.Allow()
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}
