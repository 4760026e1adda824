package models

import (
	"fmt"
	"strconv"
	"time"
)

// Platform represents a connected third-party platform.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformLinkedIn Platform = "linkedin"
	PlatformOpenAI   Platform = "openai"
)

// KnownPlatforms lists every platform the service understands.
func KnownPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformFacebook, PlatformLinkedIn, PlatformOpenAI}
}

// IsKnown reports whether the platform is one of the recognized tags.
func (p Platform) IsKnown() bool {
	switch p {
	case PlatformYouTube, PlatformFacebook, PlatformLinkedIn, PlatformOpenAI:
		return true
	}
	return false
}

// CredentialStatus is the lifecycle state of a stored credential.
type CredentialStatus string

const (
	StatusActive       CredentialStatus = "active"
	StatusDisconnected CredentialStatus = "disconnected"
)

// Credential is one stored integration for a (user, platform) pair.
// EncryptedFields holds the sealed token payload; Fields is populated
// only after decryption and is never persisted in the clear.
type Credential struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Platform        Platform          `json:"platform"`
	Status          CredentialStatus  `json:"status"`
	EncryptedFields []byte            `json:"-"`
	Fields          Fields            `json:"-"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate checks if the credential is valid.
func (c *Credential) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("credential ID is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if c.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if c.Status == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}

// IsActive reports whether the credential is eligible for scanning.
func (c *Credential) IsActive() bool {
	return c.Status == StatusActive
}

// Fields is the decrypted key-value token payload of a credential.
type Fields map[string]string

// Well-known field keys. Historical rows may carry camelCase variants;
// Normalize folds those into the snake_case canon.
const (
	FieldAccessToken           = "access_token"
	FieldRefreshToken          = "refresh_token"
	FieldExpiresAt             = "expires_at"
	FieldRefreshTokenExpiresAt = "refresh_token_expires_at"
	FieldClientID              = "client_id"
	FieldClientSecret          = "client_secret"
)

var legacyFieldNames = map[string]string{
	"accessToken":           FieldAccessToken,
	"refreshToken":          FieldRefreshToken,
	"expiresAt":             FieldExpiresAt,
	"refreshTokenExpiresAt": FieldRefreshTokenExpiresAt,
	"clientId":              FieldClientID,
	"clientSecret":          FieldClientSecret,
}

// Normalize returns a copy of the fields with legacy camelCase keys folded
// into their snake_case equivalents. Canonical keys win on conflict.
func (f Fields) Normalize() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if canon, ok := legacyFieldNames[k]; ok {
			k = canon
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
	}
	// A second pass so canonical keys always override folded legacy ones.
	for k, v := range f {
		if _, legacy := legacyFieldNames[k]; !legacy {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ExpiryTime parses the named timestamp field. It accepts RFC 3339 strings
// and Unix epoch values in seconds or milliseconds, matching the formats
// historical writers used. Returns false when absent or unparseable.
func (f Fields) ExpiryTime(key string) (time.Time, bool) {
	raw, ok := f[key]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	// Millisecond epochs are 13 digits for contemporary dates.
	if epoch > 1e12 {
		return time.UnixMilli(epoch).UTC(), true
	}
	return time.Unix(epoch, 0).UTC(), true
}

// CredentialSlice is a slice of credentials with helper methods.
type CredentialSlice []Credential

// FindByID returns a credential by ID.
func (cs CredentialSlice) FindByID(id string) (*Credential, bool) {
	for i := range cs {
		if cs[i].ID == id {
			return &cs[i], true
		}
	}
	return nil, false
}

// FilterActive returns only active credentials.
func (cs CredentialSlice) FilterActive() CredentialSlice {
	var result CredentialSlice
	for _, c := range cs {
		if c.IsActive() {
			result = append(result, c)
		}
	}
	return result
}

// FilterByPlatform returns credentials for a specific platform.
func (cs CredentialSlice) FilterByPlatform(p Platform) CredentialSlice {
	var result CredentialSlice
	for _, c := range cs {
		if c.Platform == p {
			result = append(result, c)
		}
	}
	return result
}
