package isolator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// RunScheduler triggers suite runs: once, or repeatedly at a fixed interval.
type RunScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func(ctx context.Context) error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// IntervalScheduler runs the callback immediately and then, unless runOnce is
// set, every interval until stopped. A failing periodic run is logged and
// does not stop the schedule.
type IntervalScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func(ctx context.Context) error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ RunScheduler = (*IntervalScheduler)(nil)

func NewIntervalScheduler(interval time.Duration, runOnce bool, logger log.Logger) *IntervalScheduler {
	return &IntervalScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the function that performs one run
func (s *IntervalScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start performs the first run synchronously and returns its error
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("no run callback registered")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("interval must be positive in continuous mode")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Running suite once")
		err := s.callback(ctx)
		s.running.Store(false)
		return err
	}

	s.logger.Info("Running suite continuously", "interval", s.interval)
	if err := s.callback(ctx); err != nil {
		s.running.Store(false)
		return err
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *IntervalScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.running.Load() {
				return
			}
			s.logger.Info("Starting scheduled suite run")
			if err := s.callback(ctx); err != nil {
				s.logger.Error("Scheduled suite run failed", "error", err)
			}
		case <-s.done:
			s.logger.Debug("Done signal received, stopping periodic runs")
			return
		case <-ctx.Done():
			s.logger.Debug("Context canceled, stopping periodic runs")
			s.running.Store(false)
			return
		}
	}
}

// Stop prevents further runs. A run in progress is not interrupted.
func (s *IntervalScheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		s.logger.Debug("Scheduler not running")
		return nil
	}
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped
func (s *IntervalScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic goroutine has exited or ctx expires
func (s *IntervalScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler to stop", "error", ctx.Err())
		return ctx.Err()
	}
}
