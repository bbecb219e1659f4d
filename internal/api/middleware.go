package api

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glosapay/glosapay/internal/errs"
)

const internalKeyHeader = "X-Internal-Api-Key"

// requestLogger logs one structured line per request.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"clientIp", c.ClientIP(),
		)
	}
}

// internalKeyAuth guards privileged routes with a constant-time key compare.
func internalKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(internalKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			writeError(c, errs.Mark(errs.New("missing or invalid internal API key"), errs.ErrUnauthorized))
			c.Abort()
			return
		}
		c.Next()
	}
}
