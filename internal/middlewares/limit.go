package middlewares

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProfDash/utils/ratelimit"
)

// RateLimitMiddleware 按用户 (未登录时按 IP) 限流, 计数存放在 redis 中, 多实例共享
func RateLimitMiddleware(limiter ratelimit.Limiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := c.Get("user_id"); ok {
			key = fmt.Sprintf("user:%v", userID)
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// MaxConcurrencyMiddleware 最大并发控制中间件
// 限制同时处理的请求数量, 防止 goroutine 无限增长
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "too many concurrent requests"})
		}
	}
}
