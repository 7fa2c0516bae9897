package openhtf

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Scheduler drives periodic test cycles for a station in continuous mode.
type Scheduler struct {
	interval time.Duration
	logger   log.Logger
	callback func() error
}

// NewScheduler creates a scheduler that fires every interval.
func NewScheduler(interval time.Duration, logger log.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   logger,
	}
}

// RegisterCallback registers the callback to be called when a cycle fires.
func (s *Scheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Run loops until the done channel closes, the context is cancelled, or the
// running flag drops. Callback errors are logged; the loop keeps going so a
// single failed cycle does not kill the station.
func (s *Scheduler) Run(ctx context.Context, done <-chan struct{}, running *atomic.Bool) {
	s.logger.Debug("Starting periodic test cycle loop", "interval", s.interval)

	for {
		select {
		case <-time.After(s.interval):
			if !running.Load() {
				s.logger.Debug("Station stopped, exiting test cycle loop")
				return
			}

			s.logger.Info("Running periodic test cycle")
			if err := s.callback(); err != nil {
				s.logger.Error("Error running periodic test cycle", "error", err)
			}

		case <-done:
			s.logger.Debug("Done signal received, stopping test cycle loop")
			return

		case <-ctx.Done():
			s.logger.Debug("Context canceled, stopping test cycle loop")
			running.Store(false)
			return
		}
	}
}
