// Package cleanup purges long-disconnected credentials and keeps the
// SQLite database compact.
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/logging"
)

// MetricsRecorder defines the interface for recording janitor metrics.
type MetricsRecorder interface {
	RecordCleanup(table string, deleted int64)
	RecordMaintenance(operation string, duration time.Duration)
}

// Config contains the janitor configuration.
type Config struct {
	// Interval between purge runs.
	Interval time.Duration
	// DisconnectedRetention is how long disconnected credentials are kept
	// before they are deleted. Zero keeps them forever.
	DisconnectedRetention time.Duration
	// VacuumEnabled enables periodic VACUUM of the database.
	VacuumEnabled bool
	// VacuumInterval between VACUUM runs.
	VacuumInterval time.Duration
}

// Stats contains janitor statistics.
type Stats struct {
	TotalRuns         int           `json:"total_runs"`
	TotalDeletedCount int64         `json:"total_deleted_count"`
	LastRunAt         time.Time     `json:"last_run_at"`
	LastRunDuration   time.Duration `json:"last_run_duration"`
	LastRunDeleted    int64         `json:"last_run_deleted"`
	VacuumCount       int           `json:"vacuum_count"`
	VacuumLastAt      time.Time     `json:"vacuum_last_at"`
}

// Janitor periodically deletes credentials that have been disconnected
// longer than the retention window and vacuums the database.
type Janitor struct {
	db      *sql.DB
	config  Config
	metrics MetricsRecorder
	logger  *logging.Logger

	ticker       *time.Ticker
	vacuumTicker *time.Ticker
	done         chan struct{}
	running      bool
	mu           sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// NewJanitor creates a retention janitor over the credential database.
func NewJanitor(config Config, db *sql.DB, metrics MetricsRecorder, logger *logging.Logger) *Janitor {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Janitor{
		db:      db,
		config:  config,
		metrics: metrics,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start starts the janitor's background loops.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}
	j.running = true

	if j.config.Interval > 0 {
		j.ticker = time.NewTicker(j.config.Interval)
		go j.runPurgeLoop(ctx)
	}

	if j.config.VacuumEnabled && j.config.VacuumInterval > 0 {
		j.vacuumTicker = time.NewTicker(j.config.VacuumInterval)
		go j.runVacuumLoop(ctx)
	}

	return nil
}

// Stop stops the janitor's background loops.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return nil
	}
	j.running = false

	if j.ticker != nil {
		j.ticker.Stop()
	}
	if j.vacuumTicker != nil {
		j.vacuumTicker.Stop()
	}
	close(j.done)

	return nil
}

// IsRunning reports whether the janitor loops are active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) runPurgeLoop(ctx context.Context) {
	for {
		select {
		case <-j.done:
			return
		case <-ctx.Done():
			return
		case <-j.ticker.C:
			if _, err := j.RunPurge(ctx); err != nil {
				j.logger.Error("credential purge failed", "error", err.Error())
			}
		}
	}
}

func (j *Janitor) runVacuumLoop(ctx context.Context) {
	for {
		select {
		case <-j.done:
			return
		case <-ctx.Done():
			return
		case <-j.vacuumTicker.C:
			if err := j.RunVacuum(ctx); err != nil {
				j.logger.Error("database vacuum failed", "error", err.Error())
			}
		}
	}
}

// RunPurge deletes disconnected credentials older than the retention window
// and returns the number of deleted rows.
func (j *Janitor) RunPurge(ctx context.Context) (int64, error) {
	start := time.Now()

	var deleted int64
	if j.config.DisconnectedRetention > 0 {
		cutoff := time.Now().UTC().Add(-j.config.DisconnectedRetention)
		res, err := j.db.ExecContext(ctx,
			"DELETE FROM credentials WHERE status = 'disconnected' AND updated_at < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to purge disconnected credentials: %w", err)
		}
		deleted, _ = res.RowsAffected()
	}

	duration := time.Since(start)

	j.statsMu.Lock()
	j.stats.TotalRuns++
	j.stats.TotalDeletedCount += deleted
	j.stats.LastRunAt = time.Now()
	j.stats.LastRunDuration = duration
	j.stats.LastRunDeleted = deleted
	j.statsMu.Unlock()

	if j.metrics != nil {
		j.metrics.RecordCleanup("credentials", deleted)
		j.metrics.RecordMaintenance("purge", duration)
	}

	if deleted > 0 {
		j.logger.Info("purged disconnected credentials",
			"deleted", deleted,
			"retention", j.config.DisconnectedRetention.String())
	}

	return deleted, nil
}

// RunVacuum compacts the database file.
func (j *Janitor) RunVacuum(ctx context.Context) error {
	start := time.Now()

	if _, err := j.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}

	duration := time.Since(start)

	j.statsMu.Lock()
	j.stats.VacuumCount++
	j.stats.VacuumLastAt = time.Now()
	j.statsMu.Unlock()

	if j.metrics != nil {
		j.metrics.RecordMaintenance("vacuum", duration)
	}

	return nil
}

// GetStats returns a snapshot of the janitor statistics.
func (j *Janitor) GetStats() Stats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}
