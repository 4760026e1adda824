// Package scheduler drives the periodic credential maintenance cycle:
// scan, disconnect, warn, refresh.
package scheduler

import (
	"context"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/alerts"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/metrics"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/refresh"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

// Pipeline runs one full maintenance cycle for a platform: scan the stored
// credentials, disconnect the ones whose refresh token is gone, warn about
// the ones approaching that state, and refresh access tokens that are close
// to expiry.
type Pipeline struct {
	scanner        *scanner.Scanner
	executor       *refresh.Executor
	store          store.Store
	alerts         *alerts.Service
	metrics        *metrics.Metrics
	logger         *logging.Logger
	audit          logging.AuditStore
	autoDisconnect bool
}

// PipelineDeps carries the pipeline's collaborators.
type PipelineDeps struct {
	Scanner        *scanner.Scanner
	Executor       *refresh.Executor
	Store          store.Store
	Alerts         *alerts.Service
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
	Audit          logging.AuditStore
	AutoDisconnect bool
}

// NewPipeline creates a maintenance pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Pipeline{
		scanner:        deps.Scanner,
		executor:       deps.Executor,
		store:          deps.Store,
		alerts:         deps.Alerts,
		metrics:        deps.Metrics,
		logger:         logger,
		audit:          deps.Audit,
		autoDisconnect: deps.AutoDisconnect,
	}
}

// Run executes one maintenance cycle for a platform and returns the scan
// result the cycle acted on.
func (p *Pipeline) Run(ctx context.Context, platform models.Platform, now time.Time) (*models.ScanResult, error) {
	start := time.Now()
	result, err := p.scanner.Scan(ctx, platform, now)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordScan(string(platform), nil, 0, false)
		}
		if p.alerts != nil {
			p.alerts.NotifyScanError(platform, err.Error())
		}
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordScan(string(platform), result.Counts(), time.Since(start), true)
	}
	if p.audit != nil {
		event := logging.NewAuditEvent(logging.ScanRun, "scheduled_scan", logging.StatusSuccess).
			WithDetails(map[string]interface{}{
				"platform":           string(platform),
				"needs_refresh":      len(result.NeedsAccessRefresh),
				"disconnect_warning": len(result.NeedsDisconnectWarning),
				"auto_disconnect":    len(result.ShouldAutoDisconnect),
				"skipped":            result.SkippedCredentials,
			})
		p.audit.SaveEventAsync(event)
	}

	p.applyDisconnects(ctx, result)
	p.sendWarnings(result)
	p.refreshExpiring(ctx, result)

	return result, nil
}

// RunAll executes one maintenance cycle per platform.
func (p *Pipeline) RunAll(ctx context.Context, platforms []models.Platform, now time.Time) ([]*models.ScanResult, error) {
	if len(platforms) == 0 {
		platforms = models.KnownPlatforms()
	}
	results := make([]*models.ScanResult, 0, len(platforms))
	for _, platform := range platforms {
		result, err := p.Run(ctx, platform, now)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (p *Pipeline) applyDisconnects(ctx context.Context, result *models.ScanResult) {
	for _, d := range result.ShouldAutoDisconnect {
		if !p.autoDisconnect {
			p.logger.InfoWithContext(ctx, "auto-disconnect disabled, leaving credential connected",
				"credential_id", d.CredentialID,
				"reason", d.Reason)
			continue
		}
		if err := p.store.MarkDisconnected(d.CredentialID); err != nil {
			p.logger.ErrorWithContext(ctx, "failed to disconnect credential",
				"credential_id", d.CredentialID,
				"error", err.Error())
			continue
		}
		p.logger.InfoWithContext(ctx, "credential disconnected",
			"credential_id", d.CredentialID,
			"platform", string(d.Platform),
			"reason", d.Reason)
		if p.metrics != nil {
			p.metrics.RecordDisconnect(string(d.Platform), d.Reason)
		}
		if p.audit != nil {
			event := logging.NewAuditEvent(logging.CredentialDisconnect, "auto_disconnect", logging.StatusSuccess).
				WithUserID(d.UserID).
				WithResource(d.CredentialID).
				WithDetails(map[string]interface{}{
					"platform": string(d.Platform),
					"reason":   d.Reason,
				})
			p.audit.SaveEventAsync(event)
		}
		if p.alerts != nil {
			p.alerts.NotifyAutoDisconnect(d)
		}
	}
}

func (p *Pipeline) sendWarnings(result *models.ScanResult) {
	if p.alerts == nil {
		return
	}
	for _, w := range result.NeedsDisconnectWarning {
		p.alerts.NotifyDisconnectWarning(w)
	}
}

func (p *Pipeline) refreshExpiring(ctx context.Context, result *models.ScanResult) {
	if p.executor == nil || len(result.NeedsAccessRefresh) == 0 {
		return
	}

	ids := make([]string, 0, len(result.NeedsAccessRefresh))
	for _, e := range result.NeedsAccessRefresh {
		ids = append(ids, e.CredentialID)
	}

	outcomes := p.executor.RefreshAll(ctx, ids)
	for _, o := range outcomes {
		outcome := "success"
		if !o.Refreshed {
			outcome = "failed"
			if p.alerts != nil {
				p.alerts.NotifyRefreshFailed(o.CredentialID, result.Platform, o.Error)
			}
		}
		if p.metrics != nil {
			p.metrics.RecordRefresh(string(result.Platform), outcome)
		}
	}
}
