package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// SyncFunc runs one convergence pass and reports the interval to wait before
// the next one.
type SyncFunc func(ctx context.Context) (next time.Duration, err error)

// Scheduler drives periodic sync passes with an adaptive cadence. The
// interval is whatever the last pass recommended: short while tracked
// meetings have active bots, long otherwise. Wake forces an immediate pass,
// the equivalent of a client becoming visible again after being
// backgrounded; it does not reset the cadence for anyone else, the next
// interval is simply recomputed from the pass it triggers.
type Scheduler struct {
	sync     SyncFunc
	fallback time.Duration
	wake     chan struct{}
	log      *slog.Logger
}

func New(sync SyncFunc, fallback time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		sync:     sync,
		fallback: fallback,
		wake:     make(chan struct{}, 1),
		log:      log,
	}
}

// Wake requests an immediate pass. Multiple wakes while a pass is pending
// collapse into one.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled. A failed pass keeps the fallback
// interval; the next cycle retries implicitly.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", slog.Duration("fallback_interval", s.fallback))

	interval := s.runOnce(ctx)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-s.wake:
			s.log.Debug("scheduler woken")
			interval = s.runOnce(ctx)
		case <-timer.C:
			interval = s.runOnce(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) time.Duration {
	next, err := s.sync(ctx)
	if err != nil {
		s.log.Error("sync pass failed", slog.String("error", err.Error()))
		return s.fallback
	}
	if next <= 0 {
		return s.fallback
	}
	s.log.Debug("sync pass finished", slog.Duration("next_interval", next))
	return next
}
