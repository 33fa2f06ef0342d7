package middleware

import (
	"strings"

	"github.com/ValeryJL/InsanusChat-Backend/pkg/errors"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/jwt"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware validates the bearer token and stores the resolved
// user id in the gin context under "userId". WebSocket upgrade requests
// may carry the token as a "token" query parameter instead, since
// browsers cannot set headers on WebSocket handshakes.
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication token not provided"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			log.Warn("Token validation failed", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userId", claims.UserID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authorization := c.GetHeader("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		return strings.TrimPrefix(authorization, "Bearer ")
	}
	return c.Query("token")
}

// UserID returns the authenticated user id stored by JWTAuthMiddleware
func UserID(c *gin.Context) string {
	if v, exists := c.Get("userId"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
