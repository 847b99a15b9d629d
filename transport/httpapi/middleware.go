package httpapi

import (
	"io"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerGuard is the gin form of [middleware.Guard].
func bearerGuard(v middleware.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			status, msg := goSession.PublicError(goSession.ErrTokenInvalid)
			abortWithError(c, status, msg)
			return
		}

		id, err := v.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			status, msg := goSession.PublicError(err)
			abortWithError(c, status, msg)
			return
		}

		c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// clientIP stores gin's resolved client address for the engine.
func clientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(goSession.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	})
}
