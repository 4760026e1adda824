package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokenwarden/tokenwarden/internal/logging"
)

// Middleware observes every HTTP request: latency and count per endpoint
// plus an in-flight gauge. Unmatched paths fall back to the raw URL path so
// 404s still land in the metrics.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		defer m.DecHTTPRequestsInFlight()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.RecordRequestLatency(endpoint, method, status, time.Since(start).Seconds())
		m.RecordHTTPRequest(endpoint, method, status)

		if len(c.Errors) > 0 {
			logger.ErrorWithContext(c.Request.Context(), "request error", "error", c.Errors.String())
		}
	}
}
