package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func validConfig() Config {
	return Config{
		Version: "1.0",
		Server: ServerConfig{
			Host:     "127.0.0.1",
			HTTPPort: 8417,
		},
		Encryption: EncryptionConfig{Key: testKey},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantErr: "version is required",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Server.Host = "" },
			wantErr: "host is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "http_port",
		},
		{
			name:    "missing encryption key",
			mutate:  func(c *Config) { c.Encryption.Key = "" },
			wantErr: "key is required",
		},
		{
			name:    "non-hex encryption key",
			mutate:  func(c *Config) { c.Encryption.Key = "zz" },
			wantErr: "hex",
		},
		{
			name:    "short encryption key",
			mutate:  func(c *Config) { c.Encryption.Key = "deadbeef" },
			wantErr: "32 bytes",
		},
		{
			name: "auth enabled without keys",
			mutate: func(c *Config) {
				c.API.Auth.Enabled = true
			},
			wantErr: "api_keys",
		},
		{
			name: "telegram enabled without token",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.ChatID = 42
			},
			wantErr: "bot_token",
		},
		{
			name: "scanner warning window below disconnect window",
			mutate: func(c *Config) {
				c.Scanner.RefreshDisconnectDays = 10
				c.Scanner.RefreshWarningDays = 5
			},
			wantErr: "refresh_warning_days",
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
			},
			wantErr: "cert_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, "/api/v1", cfg.API.BasePath)
	assert.Equal(t, "X-API-Key", cfg.API.Auth.HeaderName)
	assert.Equal(t, 1000, cfg.API.RateLimit.RequestsPerMinute)
	assert.Equal(t, "tokenwarden.db", cfg.Storage.Path)
	assert.Equal(t, time.Hour, cfg.Scanner.Interval)
	assert.Equal(t, 4, cfg.Scanner.Workers)
	assert.Equal(t, 7, cfg.Scanner.AccessRefreshDays)
	assert.Equal(t, 7, cfg.Scanner.RefreshDisconnectDays)
	assert.Equal(t, 30, cfg.Scanner.RefreshWarningDays)
	assert.Equal(t, 20*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, 12*time.Hour, cfg.Alerts.Debounce)
	assert.Equal(t, 720*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, 24*time.Hour, cfg.Cleanup.Interval)
	assert.Equal(t, 2160*time.Hour, cfg.Cleanup.DisconnectedRetention)
	assert.Equal(t, 168*time.Hour, cfg.Cleanup.VacuumInterval)
}

func TestConfig_ValidateAuditAndCleanup(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Retention = -time.Hour
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")

	cfg = validConfig()
	cfg.Cleanup.Interval = -time.Minute
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup")
}

func TestParse(t *testing.T) {
	data := `
version: "1.0"
server:
  host: 0.0.0.0
  http_port: 9000
encryption:
  key: "` + testKey + `"
scanner:
  interval: 30m
  auto_disconnect: true
  platforms: [youtube, linkedin]
refresh:
  timeout: 5s
  platforms:
    youtube:
      client_id: cid
      client_secret: secret
      token_url: https://example.com/token
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.Scanner.Interval)
	assert.True(t, cfg.Scanner.AutoDisconnect)
	assert.Equal(t, []string{"youtube", "linkedin"}, cfg.Scanner.Platforms)
	assert.Equal(t, 5*time.Second, cfg.Refresh.Timeout)
	require.Contains(t, cfg.Refresh.Platforms, "youtube")
	assert.Equal(t, "cid", cfg.Refresh.Platforms["youtube"].ClientID)
	assert.Equal(t, "https://example.com/token", cfg.Refresh.Platforms["youtube"].TokenURL)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("version: [nope"))
	assert.Error(t, err)

	_, err = Parse([]byte("version: \"1.0\""))
	assert.Error(t, err)
}

func TestLoader_EnvSubstitution(t *testing.T) {
	t.Setenv("TW_TEST_KEY", testKey)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		`version: "1.0"`,
		`server:`,
		`  host: 127.0.0.1`,
		`  http_port: 8417`,
		`encryption:`,
		`  key: "${TW_TEST_KEY}"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.Encryption.Key)
	assert.Same(t, cfg, loader.Get())
}

func TestLoader_NotFound(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoader_ReloadCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(port int) {
		data := strings.Join([]string{
			`version: "1.0"`,
			`server:`,
			`  host: 127.0.0.1`,
			`  http_port: ` + strconv.Itoa(port),
			`encryption:`,
			`  key: "` + testKey + `"`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	}
	write(8417)

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var gotPort int
	loader.SetOnChange(func(c *Config) { gotPort = c.Server.HTTPPort })

	write(9001)
	_, err = loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, 9001, gotPort)
	assert.Equal(t, 9001, loader.Get().Server.HTTPPort)
}

func TestLoader_Watcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(port int) {
		data := strings.Join([]string{
			`version: "1.0"`,
			`server:`,
			`  host: 127.0.0.1`,
			`  http_port: ` + strconv.Itoa(port),
			`encryption:`,
			`  key: "` + testKey + `"`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	}
	write(8417)

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan int, 1)
	loader.SetOnChange(func(c *Config) {
		select {
		case changed <- c.Server.HTTPPort:
		default:
		}
	})

	require.NoError(t, loader.StartWatcher())
	defer loader.StopWatcher()

	write(9002)

	select {
	case port := <-changed:
		assert.Equal(t, 9002, port)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not pick up config change")
	}
}
