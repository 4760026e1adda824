package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokenwarden/tokenwarden/internal/logging"
)

// DefaultAPIKeyHeader is the default header name for API key authentication
const DefaultAPIKeyHeader = "X-API-Key"

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIKeyAuth creates a middleware that validates API keys from the request
// header. When no keys are configured, authentication is bypassed.
func APIKeyAuth(apiKeys []string, headerName string, logger *logging.Logger) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}

	if len(apiKeys) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		apiKey := c.GetHeader(headerName)

		if apiKey == "" {
			logger.WarnWithContext(c.Request.Context(), "API authentication failed: missing API key",
				"header_name", headerName,
				"client_ip", c.ClientIP(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.Set("auth_error", "missing API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "API key is required. Provide it in the '" + headerName + "' header",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		for _, key := range apiKeys {
			if apiKey == key {
				c.Set("authenticated", true)
				c.Next()
				return
			}
		}

		logger.WarnWithContext(c.Request.Context(), "API authentication failed: invalid API key",
			"header_name", headerName,
			"client_ip", c.ClientIP(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.Set("auth_error", "invalid API key")
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid API key",
			Code:    http.StatusUnauthorized,
		})
	}
}
