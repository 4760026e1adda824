// Package alerts turns scan and refresh outcomes into operator
// notifications, with deduplication and rate limiting in front of the
// delivery channel.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// Notifier delivers a rendered alert message to the operator channel.
type Notifier interface {
	SendMessage(text string) error
}

// Config represents alert service configuration
type Config struct {
	Enabled            bool
	Debounce           time.Duration
	RateLimitPerMinute int
}

// Service manages alerts and notifications
type Service struct {
	config    Config
	notifier  Notifier
	dedup     *DedupStore
	throttler *Throttler
	logger    *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new alert service
func NewService(config Config, notifier Notifier, logger *logging.Logger) *Service {
	if config.Debounce <= 0 {
		config.Debounce = 12 * time.Hour
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &Service{
		config:    config,
		notifier:  notifier,
		dedup:     NewDedupStore(config.Debounce),
		throttler: NewThrottler(config.RateLimitPerMinute, config.RateLimitPerMinute),
		logger:    logger,
	}
}

// Start launches the background dedup cleanup loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dedup.Cleanup()
			}
		}
	}()
}

// Stop shuts down the background loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

// NotifyDisconnectWarning alerts that a credential's refresh token is inside
// the warning window.
func (s *Service) NotifyDisconnectWarning(w models.DisconnectWarning) {
	s.send(Alert{
		CredentialID: w.CredentialID,
		UserID:       w.UserID,
		Platform:     w.Platform,
		Type:         AlertTypeDisconnectWarning,
		Severity:     SeverityWarning,
		Message: fmt.Sprintf("⚠️ *%s* connection for user `%s` must be reconnected within %d days",
			w.Platform, w.UserID, w.RefreshExpiresInDays),
		Timestamp: time.Now(),
	})
}

// NotifyAutoDisconnect alerts that a credential was disconnected.
func (s *Service) NotifyAutoDisconnect(d models.AutoDisconnect) {
	s.send(Alert{
		CredentialID: d.CredentialID,
		UserID:       d.UserID,
		Platform:     d.Platform,
		Type:         AlertTypeAutoDisconnect,
		Severity:     SeverityCritical,
		Message: fmt.Sprintf("🔌 *%s* connection for user `%s` disconnected (%s)",
			d.Platform, d.UserID, d.Reason),
		Timestamp: time.Now(),
	})
}

// NotifyRefreshFailed alerts that a token refresh was rejected.
func (s *Service) NotifyRefreshFailed(credentialID string, platform models.Platform, reason string) {
	s.send(Alert{
		CredentialID: credentialID,
		Platform:     platform,
		Type:         AlertTypeRefreshFailed,
		Severity:     SeverityWarning,
		Message: fmt.Sprintf("♻️ token refresh failed for *%s* credential `%s`: %s",
			platform, credentialID, reason),
		Timestamp: time.Now(),
	})
}

// NotifyScanError alerts that a scan sweep aborted.
func (s *Service) NotifyScanError(platform models.Platform, reason string) {
	s.send(Alert{
		CredentialID: "scan:" + string(platform),
		Platform:     platform,
		Type:         AlertTypeScanError,
		Severity:     SeverityCritical,
		Message:      fmt.Sprintf("🛑 credential scan for *%s* failed: %s", platform, reason),
		Timestamp:    time.Now(),
	})
}

func (s *Service) send(alert Alert) {
	if !s.config.Enabled || s.notifier == nil {
		return
	}

	key := alert.AlertKey()
	if s.dedup.IsDuplicate(key) {
		s.logger.Debug("suppressing duplicate alert", "key", key)
		return
	}
	if !s.throttler.Allow() {
		s.logger.Warn("alert rate limit hit, dropping alert",
			"key", key,
			"retry_after", s.throttler.GetRetryAfter().String())
		return
	}

	if err := s.notifier.SendMessage(alert.Message); err != nil {
		s.logger.Error("failed to deliver alert",
			"key", key,
			"error", err.Error())
		return
	}
	s.dedup.Record(key)
}
