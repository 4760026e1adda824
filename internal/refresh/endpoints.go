package refresh

import (
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// ClientCredentials identifies the OAuth application on whose behalf a
// refresh grant is exchanged.
type ClientCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// IsZero reports whether both parts are empty.
func (c ClientCredentials) IsZero() bool {
	return c.ClientID == "" && c.ClientSecret == ""
}

// PlatformConfig carries per-platform refresh settings from configuration.
type PlatformConfig struct {
	TokenURL          string            `yaml:"token_url"`
	ClientCredentials ClientCredentials `yaml:",inline"`
}

// defaultTokenURLs maps each platform to its well-known OAuth token
// endpoint. A configured token_url overrides these.
var defaultTokenURLs = map[models.Platform]string{
	models.PlatformYouTube:  "https://oauth2.googleapis.com/token",
	models.PlatformFacebook: "https://graph.facebook.com/v18.0/oauth/access_token",
	models.PlatformLinkedIn: "https://www.linkedin.com/oauth/v2/accessToken",
	models.PlatformOpenAI:   "https://auth.openai.com/oauth/token",
}

// TokenURL resolves the token endpoint for a platform, preferring the
// configured override.
func (e *Executor) TokenURL(platform models.Platform) string {
	if pc, ok := e.platforms[platform]; ok && pc.TokenURL != "" {
		return pc.TokenURL
	}
	return defaultTokenURLs[platform]
}
