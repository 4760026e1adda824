package api

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/middleware"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// ScanRequest requests a credential scan. An empty platform scans all known
// platforms. When Apply is set the scan's actions (disconnects, warnings,
// refreshes) are executed instead of only reported.
type ScanRequest struct {
	Platform string `json:"platform,omitempty"`
	Apply    bool   `json:"apply,omitempty"`
}

// ScanResponse carries the per-platform scan results.
type ScanResponse struct {
	Results []*models.ScanResult `json:"results"`
}

func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
	}

	var platforms []models.Platform
	if req.Platform != "" {
		platform := models.Platform(req.Platform)
		if !platform.IsKnown() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "unknown_platform",
				Message: "unknown platform: " + req.Platform,
				Code:    http.StatusBadRequest,
			})
			return
		}
		platforms = []models.Platform{platform}
	}

	ctx := c.Request.Context()
	now := s.now().UTC()

	var (
		results []*models.ScanResult
		err     error
	)
	if req.Apply && s.pipeline != nil {
		results, err = s.pipeline.RunAll(ctx, platforms, now)
	} else {
		results, err = s.scanner.ScanAll(ctx, platforms, now)
	}
	if err != nil {
		s.logger.ErrorWithContext(ctx, "scan failed", "error", err.Error())
		s.metrics.RecordError("scan", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scan_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, ScanResponse{Results: results})
}

// RefreshRequest requests token refreshes for specific credentials, either
// by credential ID or by (user_id, platform) pair.
type RefreshRequest struct {
	CredentialID  string   `json:"credential_id,omitempty"`
	CredentialIDs []string `json:"credential_ids,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	Platform      string   `json:"platform,omitempty"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	ids := req.CredentialIDs
	if req.CredentialID != "" {
		ids = append([]string{req.CredentialID}, ids...)
	}
	if req.UserID != "" && req.Platform != "" {
		platform := models.Platform(req.Platform)
		if !platform.IsKnown() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "unknown_platform",
				Message: "unknown platform: " + req.Platform,
				Code:    http.StatusBadRequest,
			})
			return
		}
		cred, err := s.store.GetByUserPlatform(req.UserID, platform)
		if err != nil {
			var notFound *errors.ErrCredentialNotFound
			if stderrors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{
					Error:   "not_found",
					Message: "integration not found",
					Code:    http.StatusNotFound,
				})
				return
			}
			s.metrics.RecordError("store", c.FullPath(), c.Request.Method)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "store_failure",
				Message: err.Error(),
				Code:    http.StatusInternalServerError,
			})
			return
		}
		ids = append(ids, cred.ID)
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "credential_id, credential_ids or user_id+platform is required",
			Code:    http.StatusBadRequest,
		})
		return
	}

	middleware.SetAuditResource(c, strings.Join(ids, ","))

	outcomes := s.executor.RefreshAll(c.Request.Context(), ids)
	for _, o := range outcomes {
		result := "success"
		if !o.Refreshed {
			result = "failed"
		}
		s.metrics.RecordRefresh(string(o.Platform), result)
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// IntegrationView is the API representation of a stored credential. It
// carries lifecycle state and the expiration assessment, never token values.
type IntegrationView struct {
	ID         string                       `json:"id"`
	UserID     string                       `json:"user_id"`
	Platform   models.Platform              `json:"platform"`
	Status     models.CredentialStatus      `json:"status"`
	Assessment *models.ExpirationAssessment `json:"assessment,omitempty"`
	CreatedAt  string                       `json:"created_at"`
	UpdatedAt  string                       `json:"updated_at"`
}

func (s *Server) integrationView(c *gin.Context, cred *models.Credential) IntegrationView {
	view := IntegrationView{
		ID:        cred.ID,
		UserID:    cred.UserID,
		Platform:  cred.Platform,
		Status:    cred.Status,
		CreatedAt: cred.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: cred.UpdatedAt.UTC().Format(time.RFC3339),
	}

	fields, err := s.codec.Decrypt(cred.EncryptedFields)
	if err != nil {
		s.logger.WarnWithContext(c.Request.Context(), "cannot assess undecryptable credential",
			"credential_id", cred.ID,
			"error", err.Error())
		s.metrics.RecordDecryptFailure(string(cred.Platform))
		return view
	}
	fields = fields.Normalize()

	var accessExpiry, refreshExpiry *time.Time
	if t, ok := fields.ExpiryTime(models.FieldExpiresAt); ok {
		accessExpiry = &t
	}
	if t, ok := fields.ExpiryTime(models.FieldRefreshTokenExpiresAt); ok {
		refreshExpiry = &t
	}
	assessment := s.classifier.Classify(s.now().UTC(), accessExpiry, refreshExpiry)
	view.Assessment = &assessment
	return view
}

func (s *Server) handleListIntegrations(c *gin.Context) {
	creds, err := s.store.List()
	if err != nil {
		s.metrics.RecordError("store", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "store_failure",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	userID := c.Query("user_id")
	platform := c.Query("platform")

	views := make([]IntegrationView, 0, len(creds))
	for i := range creds {
		cred := &creds[i]
		if userID != "" && cred.UserID != userID {
			continue
		}
		if platform != "" && string(cred.Platform) != platform {
			continue
		}
		views = append(views, s.integrationView(c, cred))
	}

	c.JSON(http.StatusOK, gin.H{"integrations": views})
}

func (s *Server) handleGetIntegration(c *gin.Context) {
	cred, err := s.store.Get(c.Param("id"))
	if err != nil {
		var notFound *errors.ErrCredentialNotFound
		if stderrors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "integration not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		s.metrics.RecordError("store", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "store_failure",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, s.integrationView(c, cred))
}

func (s *Server) handleDisconnectIntegration(c *gin.Context) {
	id := c.Param("id")

	cred, err := s.store.Get(id)
	if err != nil {
		var notFound *errors.ErrCredentialNotFound
		if stderrors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "integration not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		s.metrics.RecordError("store", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "store_failure",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	if err := s.store.MarkDisconnected(id); err != nil {
		s.metrics.RecordError("store", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "store_failure",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	middleware.SetAuditResource(c, id)
	s.metrics.RecordDisconnect(string(cred.Platform), "manual")
	s.logger.InfoWithContext(c.Request.Context(), "integration disconnected",
		"credential_id", id,
		"platform", string(cred.Platform))

	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": models.StatusDisconnected,
	})
}
