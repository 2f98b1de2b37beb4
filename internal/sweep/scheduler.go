package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrSweepInProgress = errors.New("sweep already running")

// Scheduler triggers the sweeper on a fixed interval. Runs never overlap
// inside a process; the journal's file lock keeps a second process out.
type Scheduler struct {
	sweeper  *Sweeper
	journal  *Journal
	interval time.Duration
	log      *zap.Logger

	running sync.Mutex
}

// NewScheduler wires a scheduler. journal may be nil.
func NewScheduler(sweeper *Sweeper, journal *Journal, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		journal:  journal,
		interval: interval,
		log:      log.With(zap.String("component", "sweep-scheduler")),
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	r, err := s.sweeper.Run(ctx)
	if s.journal != nil {
		if jerr := s.journal.Record(r); jerr != nil {
			s.log.Warn("sweep run not journaled", zap.String("run_id", r.RunID), zap.Error(jerr))
		}
	}
	return r, err
}

// Start sweeps once right away and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("sweep scheduler started", zap.Duration("interval", s.interval))

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		s.log.Warn("previous sweep still running, tick skipped")
	case ctx.Err() != nil:
	default:
		s.log.Error("sweep failed", zap.Error(err))
	}
}
