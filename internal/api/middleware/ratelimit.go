package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/akkalaj75/hostelhub-v40/pkg/logger"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// DefaultKeyFunc uses user ID if authenticated, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit 요청 빈도 제한 미들웨어
// 저장소 오류 시에는 요청을 허용한다 (fail-open)
func RateLimit(limiter ratelimit.Limiter, limit int, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := "api:" + keyFunc(c)

		allowed, err := limiter.Take(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
