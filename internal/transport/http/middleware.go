package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/rotawire/internal/auth"
)

const (
	// ContextKeyEmployeeID is the context key for the authenticated employee.
	ContextKeyEmployeeID = "employee_id"
	// ContextKeyRole is the context key for the employee's role claim.
	ContextKeyRole = "role"
)

// AuthMiddleware validates the bearer token on API requests.
func AuthMiddleware(jwtConfig *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug().Msg("invalid authorization header format")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
				return
			}
			token = parts[1]
		} else if !jwtConfig.DevMode() {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		claims, err := auth.ValidateToken(jwtConfig, token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyEmployeeID, claims.EmployeeID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
