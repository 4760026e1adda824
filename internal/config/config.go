package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Audit      AuditConfig      `yaml:"audit"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BasePath  string          `yaml:"base_path"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// StorageConfig contains credential store configuration.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// EncryptionConfig contains the credential encryption key.
type EncryptionConfig struct {
	// Key is the hex-encoded 32-byte encryption key. Typically supplied
	// as ${TOKENWARDEN_ENCRYPTION_KEY} in the config file.
	Key string `yaml:"key"`
}

// ScannerConfig contains scan scheduling and action thresholds.
type ScannerConfig struct {
	Enabled               bool          `yaml:"enabled"`
	Interval              time.Duration `yaml:"interval"`
	Workers               int           `yaml:"workers"`
	Platforms             []string      `yaml:"platforms,omitempty"`
	AutoDisconnect        bool          `yaml:"auto_disconnect"`
	AccessRefreshDays     int           `yaml:"access_refresh_days"`
	RefreshDisconnectDays int           `yaml:"refresh_disconnect_days"`
	RefreshWarningDays    int           `yaml:"refresh_warning_days"`
}

// RefreshConfig contains token refresh configuration.
type RefreshConfig struct {
	Enabled   bool                             `yaml:"enabled"`
	Timeout   time.Duration                    `yaml:"timeout"`
	Workers   int                              `yaml:"workers"`
	Platforms map[string]PlatformRefreshConfig `yaml:"platforms,omitempty"`
}

// PlatformRefreshConfig contains per-platform OAuth client settings.
type PlatformRefreshConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// TelegramConfig contains Telegram bot configuration.
type TelegramConfig struct {
	Enabled   bool              `yaml:"enabled"`
	BotToken  string            `yaml:"bot_token"`
	ChatID    int64             `yaml:"chat_id"`
	RateLimit TelegramRateLimit `yaml:"rate_limit"`
}

// TelegramRateLimit contains Telegram rate limiting configuration.
type TelegramRateLimit struct {
	MessagesPerMinute int `yaml:"messages_per_minute"`
}

// AlertsConfig contains alert service configuration.
type AlertsConfig struct {
	// Enabled enables or disables the alert service.
	Enabled bool `yaml:"enabled"`
	// Debounce is the minimum time between duplicate alerts.
	// Default: 12h
	Debounce time.Duration `yaml:"debounce"`
	// RateLimitPerMinute limits the number of alerts per minute.
	// Default: 30
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// AuditConfig contains audit trail configuration.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the audit database file. Defaults to audit.db next to the
	// credential store.
	Path string `yaml:"path"`
	// Retention is how long audit events are kept.
	// Default: 720h
	Retention time.Duration `yaml:"retention"`
}

// CleanupConfig contains retention janitor configuration.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between purge runs. Default: 24h
	Interval time.Duration `yaml:"interval"`
	// DisconnectedRetention is how long disconnected credentials are kept.
	// Default: 2160h (90 days)
	DisconnectedRetention time.Duration `yaml:"disconnected_retention"`
	VacuumEnabled         bool          `yaml:"vacuum_enabled"`
	// VacuumInterval between VACUUM runs. Default: 168h
	VacuumInterval time.Duration `yaml:"vacuum_interval"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Encryption.Validate(); err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	if err := c.Scanner.Validate(); err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	if err := c.Refresh.Validate(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if err := c.Cleanup.Validate(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BasePath == "" {
		a.BasePath = "/api/v1"
	}
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 1000
	}
	// Cap rate limit to prevent abuse
	if a.RateLimit.RequestsPerMinute > 100000 {
		a.RateLimit.RequestsPerMinute = 100000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 100
	}
	if a.RateLimit.Burst > 10000 {
		a.RateLimit.Burst = 10000
	}
	return nil
}

// Validate validates storage configuration and applies defaults.
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		s.Path = "tokenwarden.db"
	}
	return nil
}

// Validate validates the encryption key.
func (e *EncryptionConfig) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("key is required")
	}
	raw, err := hex.DecodeString(e.Key)
	if err != nil {
		return fmt.Errorf("key must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	return nil
}

// Validate validates scanner configuration and applies defaults.
func (s *ScannerConfig) Validate() error {
	if s.Interval <= 0 {
		s.Interval = time.Hour
	}
	if s.Workers <= 0 {
		s.Workers = 4
	}
	if s.AccessRefreshDays <= 0 {
		s.AccessRefreshDays = 7
	}
	if s.RefreshDisconnectDays <= 0 {
		s.RefreshDisconnectDays = 7
	}
	if s.RefreshWarningDays <= 0 {
		s.RefreshWarningDays = 30
	}
	if s.RefreshWarningDays < s.RefreshDisconnectDays {
		return fmt.Errorf("refresh_warning_days must be >= refresh_disconnect_days")
	}
	return nil
}

// Validate validates refresh configuration and applies defaults.
func (r *RefreshConfig) Validate() error {
	if r.Timeout <= 0 {
		r.Timeout = 20 * time.Second
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	if t.RateLimit.MessagesPerMinute <= 0 {
		t.RateLimit.MessagesPerMinute = 20
	}
	return nil
}

// Validate validates alerts configuration and applies defaults.
func (a *AlertsConfig) Validate() error {
	if a.Debounce <= 0 {
		a.Debounce = 12 * time.Hour
	}
	if a.RateLimitPerMinute <= 0 {
		a.RateLimitPerMinute = 30
	}
	return nil
}

// Validate validates audit configuration and applies defaults.
func (a *AuditConfig) Validate() error {
	if a.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	if a.Retention == 0 {
		a.Retention = 720 * time.Hour
	}
	return nil
}

// Validate validates cleanup configuration and applies defaults.
func (c *CleanupConfig) Validate() error {
	if c.Interval < 0 || c.DisconnectedRetention < 0 || c.VacuumInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if c.Interval == 0 {
		c.Interval = 24 * time.Hour
	}
	if c.DisconnectedRetention == 0 {
		c.DisconnectedRetention = 2160 * time.Hour
	}
	if c.VacuumInterval == 0 {
		c.VacuumInterval = 168 * time.Hour
	}
	return nil
}
