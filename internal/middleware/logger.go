package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/gotchufam/pkg/logger"
)

// Logger writes a concise structured access log for each request. Errors attached to the
// context by handlers are logged alongside the request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		log := logger.WithModule("http")
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			log.Error("request", append(fields, zap.String("errors", errs.String()))...)
			return
		}
		log.Info("request", fields...)
	}
}
