package alerts

import (
	"time"

	"github.com/tokenwarden/tokenwarden/internal/models"
)

// Severity represents alert severity level
type Severity string

const (
	// SeverityInfo is for informational alerts
	SeverityInfo Severity = "info"
	// SeverityWarning is for warning alerts
	SeverityWarning Severity = "warning"
	// SeverityCritical is for critical alerts
	SeverityCritical Severity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	// AlertTypeDisconnectWarning is raised when a refresh token is inside
	// the warning window.
	AlertTypeDisconnectWarning AlertType = "disconnect_warning"
	// AlertTypeAutoDisconnect is raised when a credential is disconnected
	// because its refresh token expired or is about to.
	AlertTypeAutoDisconnect AlertType = "auto_disconnect"
	// AlertTypeRefreshFailed is raised when a token refresh is rejected.
	AlertTypeRefreshFailed AlertType = "refresh_failed"
	// AlertTypeScanError is raised when a scan sweep aborts.
	AlertTypeScanError AlertType = "scan_error"
)

// Alert represents an alert to be sent
type Alert struct {
	CredentialID string
	UserID       string
	Platform     models.Platform
	Type         AlertType
	Severity     Severity
	Message      string
	Timestamp    time.Time
}

// AlertKey creates a unique key for deduplication
func (a *Alert) AlertKey() string {
	return a.CredentialID + ":" + string(a.Type)
}

// AlertRecord represents a sent alert record for deduplication
type AlertRecord struct {
	AlertKey string
	SentAt   time.Time
	Count    int
}
