package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// CorrelationIDHeader carries the request correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

const correlationIDKey = "correlationID"

// CorrelationID reuses the caller's X-Correlation-ID or generates one, and
// echoes it in the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one line per request. Paths in exclude are skipped.
func AccessLog(lg *zap.Logger, exclude ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lo.Contains(exclude, c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("correlationId", c.GetString(correlationIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= 500 {
			lg.Warn("request failed", fields...)
			return
		}
		lg.Debug("request", fields...)
	}
}

// NewRouter builds the gin engine with recovery, correlation ids and access
// logging in front of h.
func NewRouter(h *Handler, lg *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CorrelationID())
	engine.Use(AccessLog(lg, "/api/health"))
	h.Register(engine)
	return engine
}
