package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type sweepTarget interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpirySweeper periodically completes active bookings whose rental window
// has elapsed. A sweep can also be forced with Trigger.
type ExpirySweeper struct {
	target   sweepTarget
	interval time.Duration
	clock    clock.Clock

	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewExpirySweeper(target sweepTarget, interval time.Duration, clk clock.Clock) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &ExpirySweeper{
		target:   target,
		interval: interval,
		clock:    clk,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

// Trigger requests an immediate sweep. Coalesced if one is already queued.
func (s *ExpirySweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *ExpirySweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.trigger:
			s.sweep(ctx)
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := s.target.SweepExpired(ctx)
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)

		return
	}

	if expired > 0 {
		slog.Info("expiry sweep finished", "expired", expired)
	}
}
