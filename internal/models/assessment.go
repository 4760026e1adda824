package models

// TokenStatus classifies how close a token is to expiring.
type TokenStatus string

const (
	// TokenStatusUnknown means the credential carries no expiry timestamp.
	TokenStatusUnknown TokenStatus = "unknown"
	// TokenStatusOK means the token is comfortably far from expiry.
	TokenStatusOK TokenStatus = "ok"
	// TokenStatusWarning means expiry is approaching.
	TokenStatusWarning TokenStatus = "warning"
	// TokenStatusExpiring means expiry is imminent.
	TokenStatusExpiring TokenStatus = "expiring"
	// TokenStatusExpired means the token is already unusable.
	TokenStatusExpired TokenStatus = "expired"
)

// ExpirationAssessment is the classifier output for one credential.
// Day counts and display texts are nil when the corresponding timestamp
// is absent, in which case the status is TokenStatusUnknown.
type ExpirationAssessment struct {
	AccessTokenStatus         TokenStatus `json:"access_token_status"`
	RefreshTokenStatus        TokenStatus `json:"refresh_token_status"`
	AccessTokenDaysRemaining  *int        `json:"access_token_days_remaining"`
	RefreshTokenDaysRemaining *int        `json:"refresh_token_days_remaining"`
	NeedsReconnect            bool        `json:"needs_reconnect"`
	AccessTokenDisplayText    *string     `json:"access_token_display_text"`
	RefreshTokenDisplayText   *string     `json:"refresh_token_display_text"`
}
