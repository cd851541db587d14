package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/Brownie44l1/plant-disease-api/internal/server/respond"
)

// idle per-client limiters are dropped after this long.
const limiterTTL = 10 * time.Minute

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
// A zero rule disables limiting.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

func (r RateLimitRule) enabled() bool {
	return r.Rate > 0 && r.Burst > 0
}

// RateLimit limits requests per client IP.
func RateLimit(rule RateLimitRule) gin.HandlerFunc {
	if !rule.enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := cache.New(limiterTTL, limiterTTL)

	return func(c *gin.Context) {
		lim := limiterFor(limiters, c.ClientIP(), rule)
		res := lim.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respond.Error(c, http.StatusTooManyRequests, respond.CodeRateLimited, "Too many requests")
			return
		}
		c.Next()
	}
}

func limiterFor(limiters *cache.Cache, key string, rule RateLimitRule) *rate.Limiter {
	if v, ok := limiters.Get(key); ok {
		lim := v.(*rate.Limiter)
		limiters.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(rule.Rate), rule.Burst)
	if err := limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// lost a race with another request from the same client
		if v, ok := limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
