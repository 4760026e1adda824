package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokenwarden/tokenwarden/internal/logging"
)

// AuditMiddleware records every API request in the audit trail. Request and
// response bodies are never captured; credential payloads stay out of audit rows.
func AuditMiddleware(auditStore logging.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		eventType := logging.APIAccess
		status := logging.StatusSuccess
		if c.Writer.Status() == 401 {
			eventType = logging.AuthFailure
			status = logging.StatusFailure
		} else if c.Writer.Status() >= 400 {
			status = logging.StatusFailure
		}

		event := logging.NewAuditEvent(eventType, c.Request.Method+" "+path, status)
		event.IPAddress = c.ClientIP()
		event.Resource = path

		event.Details = map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if userID, exists := c.Get("user_id"); exists {
			event.UserID = userID.(string)
		}

		auditStore.SaveEventAsync(event)
	}
}

// AuditCredentialAction records a credential mutation (refresh, disconnect)
// once the handler has finished. Handlers set the affected credential via
// SetAuditResource.
func AuditCredentialAction(auditStore logging.AuditStore, eventType logging.AuditEventType, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		event := logging.NewAuditEvent(eventType, action, logging.StatusSuccess)
		event.IPAddress = c.ClientIP()

		if userID, exists := c.Get("user_id"); exists {
			event.UserID = userID.(string)
		}
		if resource, exists := c.Get("audit_resource"); exists {
			event.Resource = resource.(string)
		}

		auditStore.SaveEventAsync(event)
	}
}

// AuditAuthFailure records rejected authentication attempts with the
// client address so repeated probing is visible in the audit trail.
func AuditAuthFailure(auditStore logging.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != 401 {
			return
		}

		event := logging.NewAuditEvent(logging.AuthFailure, "authentication", logging.StatusFailure)
		event.IPAddress = c.ClientIP()
		event.Severity = logging.SeverityWarning

		event.Details = map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
		}

		if errMsg, exists := c.Get("auth_error"); exists {
			event.ErrorMessage = errMsg.(string)
		}

		auditStore.SaveEventAsync(event)
	}
}

// SetAuditResource sets the resource (typically a credential ID) for audit
// middlewares further up the chain.
func SetAuditResource(c *gin.Context, resource string) {
	c.Set("audit_resource", resource)
}
