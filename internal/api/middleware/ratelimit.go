package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"taskhub/internal/pkg/metrics"
	"taskhub/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Limiter 按 key 限流的能力。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Wait(ctx context.Context, key string, maxWait time.Duration) error
}

// RateLimit 按客户端 IP 限流。
//
// 桶空时若下一个令牌在 maxWait 内可得则排队等待，否则返回 429 与 Retry-After。
// Redis 出错时放行并记录告警。
func RateLimit(limiter Limiter, maxWait time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			warnLimiter(logger, ip, err)
			c.Next()
			return
		}
		if !allowed && maxWait > 0 && retryAfter <= maxWait {
			err := limiter.Wait(c.Request.Context(), ip, maxWait)
			switch {
			case err == nil:
				allowed = true
			case !errors.Is(err, ratelimit.ErrRateLimitTimeout):
				warnLimiter(logger, ip, err)
				c.Next()
				return
			}
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.Inc()
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func warnLimiter(logger *slog.Logger, ip string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("rate limit check failed",
		slog.String("client_ip", ip),
		slog.String("error", err.Error()),
	)
}
