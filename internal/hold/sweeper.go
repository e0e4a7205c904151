package hold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Sweeper periodically releases ACTIVE holds whose expiry has passed. It is
// safe to run alongside user-triggered releases and conversions: the
// ACTIVE-status precondition on ReleaseHold makes whoever acts first win
// and turns the loser into a no-op.
type Sweeper struct {
	mgr    *Manager
	logger observability.Logger

	interval    time.Duration
	batchSize   int
	concurrency int
	maxRetries  int

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the default interval between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize caps how many expired holds one sweep picks up.
func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewSweeper(mgr *Manager, logger observability.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		mgr:         mgr,
		logger:      logger,
		interval:    5 * time.Minute,
		batchSize:   200,
		concurrency: 8,
		maxRetries:  3,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop in a background goroutine. Call Stop to end
// it; the loop also ends when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

// Stop signals the loop and waits for the in-flight sweep to finish.
// Stopping a sweeper that was never started is a no-op.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			released, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.WithError(err).Error("sweep failed")
				continue
			}
			if released > 0 {
				s.logger.WithField("released", released).Info("sweep released expired holds")
			}
		}
	}
}

// SweepOnce releases every hold past its expiry, each independently: one
// hold's failure never aborts the rest. Returns the number released.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.mgr.clock.Now()
	expired, err := s.mgr.store.ListExpiredHolds(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	released := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, h := range expired {
		h := h
		g.Go(func() error {
			ok := s.releaseExpired(gctx, h)
			if ok {
				mu.Lock()
				released++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return released, nil
}

// releaseExpired releases one hold, retrying infrastructure failures with
// exponential backoff. Business outcomes (already released, already
// converted, vanished) are benign races and are not retried.
func (s *Sweeper) releaseExpired(ctx context.Context, h domain.HoldRecord) bool {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.mgr.ReleaseHold(ctx, h.ID, domain.ReleaseReasonExpired)
		if err == nil {
			return true
		}
		if errors.Is(err, domain.ErrAlreadyTerminal) || errors.Is(err, domain.ErrNotFound) {
			s.logger.WithField("hold_id", h.ID.String()).Debug("expired hold already settled")
			return false
		}

		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
	s.logger.WithField("hold_id", h.ID.String()).Error("failed to release expired hold after retries")
	return false
}
