package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type timeoutCanceller interface {
	CancelForTimeout(ctx context.Context, bookingID uuid.UUID) error
}

// CancellationScheduler tracks one pending auto-cancel timer per confirmed
// booking. The registry is volatile by design: the authoritative deadline is
// derivable from the booking row (created_at + ResponseWindow), so losing
// the timers on restart is recoverable.
type CancellationScheduler struct {
	canceller timeoutCanceller
	window    time.Duration
	clock     clock.Clock

	mu     sync.Mutex
	gen    uint64
	timers map[uuid.UUID]armedTimer
}

// armedTimer tags each registration with a generation so a firing timer can
// tell whether the registry entry is still its own or belongs to a later
// re-arm.
type armedTimer struct {
	timer *clock.Timer
	gen   uint64
}

func newCancellationScheduler(canceller timeoutCanceller, window time.Duration, clk clock.Clock) *CancellationScheduler {
	return &CancellationScheduler{
		canceller: canceller,
		window:    window,
		clock:     clk,
		timers:    make(map[uuid.UUID]armedTimer),
	}
}

// Arm schedules the auto-cancel for a freshly confirmed booking.
func (s *CancellationScheduler) Arm(bookingID uuid.UUID) {
	s.ArmAfter(bookingID, s.window)
}

// ArmAfter schedules the auto-cancel with an explicit remaining duration.
// The recovery bootstrapper uses it to re-arm partially elapsed windows. A
// prior registration for the same booking is replaced.
func (s *CancellationScheduler) ArmAfter(bookingID uuid.UUID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[bookingID]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen

	s.timers[bookingID] = armedTimer{
		timer: s.clock.AfterFunc(d, func() {
			s.fire(bookingID, gen)
		}),
		gen: gen,
	}
}

// Disarm cancels the pending timer. No-op when the timer already fired or
// was never armed.
func (s *CancellationScheduler) Disarm(bookingID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[bookingID]; ok {
		t.timer.Stop()
		delete(s.timers, bookingID)
	}
}

// Stop drops every pending timer. Used at shutdown; deadlines are recovered
// from the booking rows on the next start.
func (s *CancellationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
}

// Pending reports how many timers are currently armed.
func (s *CancellationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// fire runs in the timer goroutine. The bookkeeping entry is removed even
// when the cancel errors, so a stuck registration can never block a future
// re-arm. The delete is generation-checked: a re-arm that happened while the
// cancel was in flight keeps its own registration.
func (s *CancellationScheduler) fire(bookingID uuid.UUID, gen uint64) {
	defer func() {
		s.mu.Lock()
		if cur, ok := s.timers[bookingID]; ok && cur.gen == gen {
			delete(s.timers, bookingID)
		}
		s.mu.Unlock()
	}()

	err := s.canceller.CancelForTimeout(context.Background(), bookingID)
	if err != nil {
		slog.Error("auto-cancel failed", "booking_id", bookingID, "error", err)
	}
}
