package middleware

import (
	"strconv"
	"time"

	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Logger logs each request and records it in the HTTP metrics. The route
// template, not the raw path, labels the metrics.
func Logger(log logger.Logger, m *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.RecordHTTPRequest(route, c.Request.Method, strconv.Itoa(status), elapsed)

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Float64("ms", float64(elapsed.Microseconds())/1000),
		}
		switch {
		case status >= 500:
			log.Error(c.Request.Context(), "request", fields...)
		case status >= 400:
			log.Warn(c.Request.Context(), "request", fields...)
		default:
			log.Info(c.Request.Context(), "request", fields...)
		}
	}
}
