// Package expiry classifies credential token lifetimes. Classification is
// pure: it depends only on the instant passed in and the expiry timestamps,
// never on the wall clock or any external state.
package expiry

import (
	"fmt"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/models"
)

const secondsPerDay = 86400

// Display text prefixes for the two token kinds.
const (
	AccessTokenPrefix  = "Token"
	RefreshTokenPrefix = "Reconnect in"
)

// Thresholds are the day-count tier boundaries used to classify tokens for
// display. They are deliberately separate from the scanner's action policy:
// the two share default values but are tuned independently.
type Thresholds struct {
	AccessExpiringDays  int `yaml:"access_expiring_days"`
	AccessWarningDays   int `yaml:"access_warning_days"`
	RefreshExpiringDays int `yaml:"refresh_expiring_days"`
	RefreshWarningDays  int `yaml:"refresh_warning_days"`
}

// DefaultThresholds returns the standard classification tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AccessExpiringDays:  7,
		AccessWarningDays:   14,
		RefreshExpiringDays: 7,
		RefreshWarningDays:  30,
	}
}

// Validate checks that the tiers are ordered sensibly.
func (t Thresholds) Validate() error {
	if t.AccessExpiringDays <= 0 || t.RefreshExpiringDays <= 0 {
		return fmt.Errorf("expiring thresholds must be positive")
	}
	if t.AccessWarningDays < t.AccessExpiringDays {
		return fmt.Errorf("access warning threshold %d below expiring threshold %d", t.AccessWarningDays, t.AccessExpiringDays)
	}
	if t.RefreshWarningDays < t.RefreshExpiringDays {
		return fmt.Errorf("refresh warning threshold %d below expiring threshold %d", t.RefreshWarningDays, t.RefreshExpiringDays)
	}
	return nil
}

// Classifier maps expiry timestamps to an ExpirationAssessment.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a classifier with the given tiers.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// Classify assesses both tokens of a credential at the given instant.
// A nil timestamp yields TokenStatusUnknown and nil day count and text.
func (c *Classifier) Classify(now time.Time, accessExpiresAt, refreshExpiresAt *time.Time) models.ExpirationAssessment {
	assessment := models.ExpirationAssessment{
		AccessTokenStatus:  models.TokenStatusUnknown,
		RefreshTokenStatus: models.TokenStatusUnknown,
	}

	if accessExpiresAt != nil {
		days := DaysRemaining(now, *accessExpiresAt)
		assessment.AccessTokenDaysRemaining = &days
		assessment.AccessTokenStatus = classifyDays(days, c.thresholds.AccessExpiringDays, c.thresholds.AccessWarningDays)
		text := FormatTimeRemaining(days, AccessTokenPrefix)
		assessment.AccessTokenDisplayText = &text
	}

	if refreshExpiresAt != nil {
		days := DaysRemaining(now, *refreshExpiresAt)
		assessment.RefreshTokenDaysRemaining = &days
		assessment.RefreshTokenStatus = classifyDays(days, c.thresholds.RefreshExpiringDays, c.thresholds.RefreshWarningDays)
		text := FormatTimeRemaining(days, RefreshTokenPrefix)
		assessment.RefreshTokenDisplayText = &text
	}

	assessment.NeedsReconnect = assessment.RefreshTokenStatus == models.TokenStatusExpired ||
		assessment.RefreshTokenStatus == models.TokenStatusExpiring

	return assessment
}

// DaysRemaining returns the whole days between now and expiresAt, rounded
// toward negative infinity. Zero or negative means already expired.
func DaysRemaining(now, expiresAt time.Time) int {
	secs := expiresAt.Unix() - now.Unix()
	if secs >= 0 {
		return int(secs / secondsPerDay)
	}
	return int((secs - secondsPerDay + 1) / secondsPerDay)
}

func classifyDays(days, expiringDays, warningDays int) models.TokenStatus {
	switch {
	case days <= 0:
		return models.TokenStatusExpired
	case days <= expiringDays:
		return models.TokenStatusExpiring
	case days <= warningDays:
		return models.TokenStatusWarning
	default:
		return models.TokenStatusOK
	}
}

// FormatTimeRemaining renders a day count as the short human-readable form
// the dashboard shows, e.g. "Token: 2 days" or "Reconnect in: 1y 2m".
func FormatTimeRemaining(days int, prefix string) string {
	switch {
	case days <= 0:
		return "Expired"
	case days == 1:
		return fmt.Sprintf("%s: 1 day", prefix)
	case days < 30:
		return fmt.Sprintf("%s: %d days", prefix, days)
	case days < 365:
		months := days / 30
		return fmt.Sprintf("%s: %d month%s", prefix, months, plural(months))
	default:
		years := days / 365
		months := (days % 365) / 30
		if months > 0 {
			return fmt.Sprintf("%s: %dy %dm", prefix, years, months)
		}
		return fmt.Sprintf("%s: %d year%s", prefix, years, plural(years))
	}
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
