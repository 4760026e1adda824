package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// Scheduler runs the maintenance pipeline on a fixed interval.
type Scheduler struct {
	pipeline  *Pipeline
	interval  time.Duration
	platforms []models.Platform
	logger    *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over the given pipeline. An empty
// platform list means all known platforms.
func NewScheduler(pipeline *Pipeline, interval time.Duration, platforms []models.Platform, logger *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Scheduler{
		pipeline:  pipeline,
		interval:  interval,
		platforms: platforms,
		logger:    logger,
	}
}

// Start launches the periodic loop. The first cycle runs immediately.
func (s *Scheduler) Start() {
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

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()

	s.logger.Info("scheduler started",
		"interval", s.interval.String(),
		"platforms", len(s.platforms))
}

// Stop cancels the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.pipeline.RunAll(ctx, s.platforms, time.Now().UTC()); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("maintenance cycle failed", "error", err.Error())
	}
}
