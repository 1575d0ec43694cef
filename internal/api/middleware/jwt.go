package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"taskhub/internal/apperr"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/session"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenValidator 校验令牌并解析出调用者。
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*session.Identity, error)
}

// AuthMiddleware 校验 Bearer 令牌并将 *session.Identity 写入上下文。
func AuthMiddleware(validator TokenValidator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			metrics.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_header").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := validator.Validate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
				return
			}
			if logger != nil {
				logger.Error("validate token failed",
					slog.String("request_id", GetRequestID(c)),
					slog.String("error", err.Error()),
				)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": apperr.Message(err)})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity 返回 AuthMiddleware 写入的调用者，未认证时为 nil。
func GetIdentity(c *gin.Context) *session.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*session.Identity)
	return identity
}
