package models

import "time"

// Disconnect reason codes attached to auto-disconnect entries.
const (
	ReasonRefreshTokenExpired = "refresh_token_expired"
)

// ExpiringToken identifies a credential whose access token should be
// proactively refreshed.
type ExpiringToken struct {
	UserID        string   `json:"user_id"`
	CredentialID  string   `json:"credential_id"`
	Platform      Platform `json:"platform"`
	ExpiresInDays int      `json:"expires_in_days"`
}

// DisconnectWarning identifies a credential whose refresh token is inside
// the warning window but not yet the disconnect window.
type DisconnectWarning struct {
	UserID               string   `json:"user_id"`
	CredentialID         string   `json:"credential_id"`
	Platform             Platform `json:"platform"`
	RefreshExpiresInDays int      `json:"refresh_expires_in_days"`
}

// AutoDisconnect identifies a credential whose refresh token is expired or
// inside the disconnect window.
type AutoDisconnect struct {
	UserID       string   `json:"user_id"`
	CredentialID string   `json:"credential_id"`
	Platform     Platform `json:"platform"`
	Reason       string   `json:"reason"`
}

// ScanResult is the output of one scan pass over a platform's active
// credentials. The three buckets are independent: one credential may appear
// in more than one of them. Bucket ordering carries no meaning.
type ScanResult struct {
	Platform               Platform            `json:"platform"`
	NeedsAccessRefresh     []ExpiringToken     `json:"needs_access_refresh"`
	NeedsDisconnectWarning []DisconnectWarning `json:"needs_disconnect_warning"`
	ShouldAutoDisconnect   []AutoDisconnect    `json:"should_auto_disconnect"`
	SkippedCredentials     int                 `json:"skipped_credentials"`
	CheckedAt              time.Time           `json:"checked_at"`
}

// Counts summarizes the scan result bucket sizes.
func (r *ScanResult) Counts() map[string]int {
	return map[string]int{
		"needs_access_refresh":     len(r.NeedsAccessRefresh),
		"needs_disconnect_warning": len(r.NeedsDisconnectWarning),
		"should_auto_disconnect":   len(r.ShouldAutoDisconnect),
		"skipped":                  r.SkippedCredentials,
	}
}
