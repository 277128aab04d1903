package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/config"
)

// RateLimitMiddleware counts requests per client IP in a fixed window kept in redis. Requests pass
// through while redis is not connected.
func RateLimitMiddleware(limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rdb := config.GetRedisDB()
		if rdb == nil {
			c.Next()
			return
		}
		key := "ratelimit:" + c.ClientIP()

		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		if count == 1 {
			if err := rdb.Expire(c.Request.Context(), key, window).Err(); err != nil {
				c.AbortWithError(http.StatusInternalServerError, err)
				return
			}
		}
		if count > limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded, try again in %d seconds", int(window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
