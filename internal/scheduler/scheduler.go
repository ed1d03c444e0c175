// Package scheduler drives the fetch+process cycle during trading hours.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"oispurts/internal/fetch"
	"oispurts/internal/logger"
	"oispurts/internal/models"
	"oispurts/internal/process"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher downloads one raw snapshot file.
type Fetcher interface {
	Fetch(ctx context.Context) (*fetch.RawSnapshotFile, error)
}

// Processor merges a raw snapshot file into the day's series.
type Processor interface {
	Process(raw *fetch.RawSnapshotFile) (models.Snapshot, error)
	RecordOutcome(err error)
}

// Scheduler owns the trading window and the fixed-interval clock. One
// background goroutine runs cycles; a failure in one cycle never stops the
// loop; the next cycle fires at its scheduled time. If a cycle overruns the
// interval, the ticker delivers at most one pending tick, so the next cycle
// fires immediately after completion instead of double-firing.
type Scheduler struct {
	fetcher   Fetcher
	processor Processor
	window    Window
	interval  time.Duration

	now   func() time.Time
	fatal func(error) // persistence failures are not survivable

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler in the idle state.
func New(fetcher Fetcher, processor Processor, window Window, interval time.Duration) *Scheduler {
	return &Scheduler{
		fetcher:   fetcher,
		processor: processor,
		window:    window,
		interval:  interval,
		now:       time.Now,
		fatal: func(err error) {
			logger.Fatal("unrecoverable cycle failure: %v", err)
		},
		state: StateIdle,
	}
}

// Start launches the background cycle loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	logger.Info("scheduler started (window %s, interval %v)", s.window, s.interval)
}

// Stop requests shutdown and waits for the loop to finish. An in-flight
// fetch is cancelled through its context, so shutdown latency is bounded by
// one request timeout, not one full cycle.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	if s.state != state {
		logger.Debug("scheduler state: %s -> %s", s.state, state)
		s.state = state
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.setState(StateStopped)

	for {
		now := s.now()
		if !s.window.Contains(now) {
			s.setState(StateWaiting)
			next := s.window.NextOpen(now)
			logger.Info("outside trading window, next open at %s", next.Format(time.RFC1123))
			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
			}
			continue
		}

		s.setState(StateActive)
		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
	active:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				if !s.window.Contains(s.now()) {
					break active
				}
				s.runCycle(ctx)
			}
		}
		ticker.Stop()
		logger.Info("trading window closed")
	}
}

// runCycle executes one fetch+process iteration. All cycle failures are
// absorbed here; only persistence failures escalate.
func (s *Scheduler) runCycle(ctx context.Context) {
	started := s.now()
	logger.Debug("cycle starting")

	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.finishCycle(started, err)
		return
	}

	// Cancellation checkpoint between fetch and process: never start an
	// append that a shutdown could interrupt.
	if ctx.Err() != nil {
		return
	}

	snap, err := s.processor.Process(raw)
	if err != nil {
		var persist *process.PersistenceError
		if errors.As(err, &persist) {
			s.fatal(persist)
			return
		}
		s.finishCycle(started, err)
		return
	}

	s.finishCycle(started, nil)
	logger.Info("cycle completed in %v: %d instruments at %s",
		s.now().Sub(started), len(snap.Records), snap.CapturedAt.Format("15:04:05"))
}

func (s *Scheduler) finishCycle(started time.Time, err error) {
	s.processor.RecordOutcome(err)
	if err != nil {
		logger.Error("cycle failed (%s, started %s): %v",
			failureKind(err), started.Format("15:04:05"), err)
	}
}

// failureKind names the error taxonomy bucket for diagnostics.
func failureKind(err error) string {
	var (
		netErr     *fetch.NetworkError
		invalidErr *fetch.InvalidResponseError
		parseErr   *process.ParseError
	)
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &invalidErr):
		return "invalid-response"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, process.ErrNoData):
		return "no-data"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
