// Package scanner walks stored credentials and decides which ones need
// action: a proactive access-token refresh, a disconnect warning, or an
// automatic disconnect.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/expiry"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

// Policy holds the action thresholds in days. These govern what the scanner
// does, as opposed to the classifier tiers which govern what a dashboard
// shows.
type Policy struct {
	// Access tokens expiring within this many days land in the refresh
	// bucket. Already-expired access tokens do not: refreshing them is
	// pointless once the refresh token path is the only way back.
	AccessRefreshDays int `yaml:"access_refresh_days"`
	// Refresh tokens expiring within this many days (or already expired)
	// land in the auto-disconnect bucket.
	RefreshDisconnectDays int `yaml:"refresh_disconnect_days"`
	// Refresh tokens expiring within this many days, but outside the
	// disconnect window, land in the warning bucket.
	RefreshWarningDays int `yaml:"refresh_warning_days"`
}

// DefaultPolicy returns the standard action thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AccessRefreshDays:     7,
		RefreshDisconnectDays: 7,
		RefreshWarningDays:    30,
	}
}

// Validate checks that the policy windows nest correctly.
func (p Policy) Validate() error {
	if p.AccessRefreshDays <= 0 {
		return fmt.Errorf("access refresh window must be positive, got %d", p.AccessRefreshDays)
	}
	if p.RefreshDisconnectDays <= 0 {
		return fmt.Errorf("refresh disconnect window must be positive, got %d", p.RefreshDisconnectDays)
	}
	if p.RefreshWarningDays < p.RefreshDisconnectDays {
		return fmt.Errorf("refresh warning window %d below disconnect window %d", p.RefreshWarningDays, p.RefreshDisconnectDays)
	}
	return nil
}

// Scanner sweeps active credentials for a platform and sorts them into
// action buckets.
type Scanner struct {
	store   store.Store
	codec   *crypto.Codec
	policy  Policy
	workers int
	logger  *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers sets the number of concurrent credential evaluations.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a scanner over the given store and codec.
func New(st store.Store, codec *crypto.Codec, policy Policy, opts ...Option) *Scanner {
	s := &Scanner{
		store:   st,
		codec:   codec,
		policy:  policy,
		workers: 4,
		logger:  logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan evaluates every active credential of one platform at the given
// instant. A credential that cannot be decrypted is counted as skipped and
// the sweep continues; a store read failure aborts the whole scan.
func (s *Scanner) Scan(ctx context.Context, platform models.Platform, now time.Time) (*models.ScanResult, error) {
	creds, err := s.store.ListActive(platform)
	if err != nil {
		return nil, fmt.Errorf("listing credentials for %s: %w", platform, err)
	}

	result := &models.ScanResult{
		Platform:               platform,
		NeedsAccessRefresh:     []models.ExpiringToken{},
		NeedsDisconnectWarning: []models.DisconnectWarning{},
		ShouldAutoDisconnect:   []models.AutoDisconnect{},
		CheckedAt:              now,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan models.Credential)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cred := range jobs {
				s.evaluate(ctx, cred, now, result, &mu)
			}
		}()
	}

	for _, cred := range creds {
		select {
		case jobs <- cred:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "scan complete",
		"platform", string(platform),
		"credentials", len(creds),
		"needs_access_refresh", len(result.NeedsAccessRefresh),
		"needs_disconnect_warning", len(result.NeedsDisconnectWarning),
		"should_auto_disconnect", len(result.ShouldAutoDisconnect),
		"skipped", result.SkippedCredentials)

	return result, nil
}

// ScanAll runs Scan for each platform and returns the per-platform results.
func (s *Scanner) ScanAll(ctx context.Context, platforms []models.Platform, now time.Time) ([]*models.ScanResult, error) {
	if len(platforms) == 0 {
		platforms = models.KnownPlatforms()
	}
	results := make([]*models.ScanResult, 0, len(platforms))
	for _, p := range platforms {
		r, err := s.Scan(ctx, p, now)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Scanner) evaluate(ctx context.Context, cred models.Credential, now time.Time, result *models.ScanResult, mu *sync.Mutex) {
	fields, err := s.codec.Decrypt(cred.EncryptedFields)
	if err != nil {
		s.logger.WarnWithContext(ctx, "skipping undecryptable credential",
			"credential_id", cred.ID,
			"platform", string(cred.Platform),
			"error", err.Error())
		mu.Lock()
		result.SkippedCredentials++
		mu.Unlock()
		return
	}
	fields = fields.Normalize()

	mu.Lock()
	defer mu.Unlock()

	if refreshExpiry, ok := fields.ExpiryTime(models.FieldRefreshTokenExpiresAt); ok {
		days := expiry.DaysRemaining(now, refreshExpiry)
		switch {
		case days <= 0:
			result.ShouldAutoDisconnect = append(result.ShouldAutoDisconnect, models.AutoDisconnect{
				UserID:       cred.UserID,
				CredentialID: cred.ID,
				Platform:     cred.Platform,
				Reason:       models.ReasonRefreshTokenExpired,
			})
		case days <= s.policy.RefreshDisconnectDays:
			result.ShouldAutoDisconnect = append(result.ShouldAutoDisconnect, models.AutoDisconnect{
				UserID:       cred.UserID,
				CredentialID: cred.ID,
				Platform:     cred.Platform,
				Reason:       fmt.Sprintf("refresh_token_expires_in_%d_days", days),
			})
		case days <= s.policy.RefreshWarningDays:
			result.NeedsDisconnectWarning = append(result.NeedsDisconnectWarning, models.DisconnectWarning{
				UserID:               cred.UserID,
				CredentialID:         cred.ID,
				Platform:             cred.Platform,
				RefreshExpiresInDays: days,
			})
		}
	}

	if accessExpiry, ok := fields.ExpiryTime(models.FieldExpiresAt); ok {
		days := expiry.DaysRemaining(now, accessExpiry)
		if days > 0 && days <= s.policy.AccessRefreshDays {
			result.NeedsAccessRefresh = append(result.NeedsAccessRefresh, models.ExpiringToken{
				UserID:        cred.UserID,
				CredentialID:  cred.ID,
				Platform:      cred.Platform,
				ExpiresInDays: days,
			})
		}
	}
}
