package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bhandras/bazaar/internal/hub"
	"github.com/bhandras/bazaar/pkg/logger"
)

const userIDKey = "userID"

// AuthMiddleware validates the bearer token and stores the user id.
func AuthMiddleware(verifier hub.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := verifier.VerifyToken(strings.TrimSpace(parts[1]))
		if err != nil || claims.UserID() == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, claims.UserID())
		c.Next()
	}
}

// GetUserID extracts the user id stored by AuthMiddleware.
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// LoggingMiddleware logs each request with its status and latency.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		latency := time.Since(start)

		switch {
		case status >= http.StatusInternalServerError:
			logger.Errorf("[%s] %s - %d (%v)", c.Request.Method, path, status, latency)
		case status >= http.StatusBadRequest:
			logger.Warnf("[%s] %s - %d (%v)", c.Request.Method, path, status, latency)
		default:
			logger.Debugf("[%s] %s - %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
