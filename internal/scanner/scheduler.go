package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/pkg/models"
)

// RunFunc starts one scan. Coordinator.Run satisfies it.
type RunFunc func(ctx context.Context, cfg models.ScanConfig) (*models.Snapshot, error)

// Scheduler triggers scans at the configured auto-scan interval. Every Apply
// drops the pending entry and re-arms from scratch, so a configuration change
// never leaves a stale timer behind.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cfg     models.ScanConfig
	entry   cron.EntryID
	armed   bool
	started bool
}

// NewScheduler creates a stopped scheduler with no entry.
func NewScheduler(run RunFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		run:    run,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins firing armed entries. A stopped scheduler may be started
// again with a fresh context for the scans it triggers.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("auto-scan scheduler started")
}

// Stop halts the timer, cancels a scan it triggered and waits for that scan
// to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("auto-scan scheduler stopped")
}

// Apply replaces the schedule with one derived from cfg. A disabled config
// leaves nothing armed.
func (s *Scheduler) Apply(cfg models.ScanConfig) error {
	if cfg.AutoScanEnabled && cfg.Interval() <= 0 {
		return invalid("auto_scan_interval_seconds", "must be positive when auto-scan is enabled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		s.cron.Remove(s.entry)
		s.armed = false
	}
	s.cfg = cfg
	if !cfg.AutoScanEnabled {
		s.logger.Info("auto-scan disabled")
		return nil
	}
	s.entry = s.cron.Schedule(cron.Every(cfg.Interval()), cron.FuncJob(s.tick))
	s.armed = true
	s.logger.Info("auto-scan armed",
		zap.String("range", cfg.Range),
		zap.Duration("interval", cfg.Interval()),
	)
	return nil
}

// Next returns the next fire time, or the zero time when nothing is armed or
// the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	cfg := s.cfg
	ctx := s.ctx
	s.mu.Unlock()

	_, err := s.run(ctx, cfg)
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		s.logger.Info("auto-scan skipped, scan already running")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Warn("auto-scan failed", zap.Error(err))
	}
}
