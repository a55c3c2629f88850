package booking

import (
	"context"
	"testing"
	"time"

	"github.com/subshare/subshare/internal/repos/bookings"
	"github.com/subshare/subshare/internal/services/notify"
)

func TestRecovery_ReArmsRemainingWindow(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	ctx := context.Background()

	b, err := f.engine.CreateBooking(ctx, clientID, listingID, 2)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	// Simulate a crash: timers are lost, the booking row survives.
	f.engine.Close()

	// 12 of the 15 minutes pass while the process is down.
	f.clock.Add(12 * time.Minute)

	restarted := NewEngine(f.db, notify.NewLogNotifier(), f.clock)
	defer restarted.Close()

	if err := restarted.RecoverPendingCancellations(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if got := restarted.sched.Pending(); got != 1 {
		t.Fatalf("pending timers after recovery: want 1, got %d", got)
	}
	if got := f.bookingStatus(t, b.ID); got != bookings.StatusConfirmed {
		t.Fatalf("booking cancelled before its deadline: %q", got)
	}

	// Only the remaining 3 minutes are left, not a fresh window.
	f.clock.Add(3 * time.Minute)
	f.waitForStatus(t, b.ID, bookings.StatusCancelled)

	if got := f.balance(t, clientID); got != 50000 {
		t.Fatalf("refund after recovered cancel: want 50000, got %d", got)
	}
	if got := f.availableSlots(t); got != 2 {
		t.Fatalf("slot not returned after recovered cancel: %d", got)
	}
}

func TestRecovery_CancelsOverdueImmediately(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	ctx := context.Background()

	b, err := f.engine.CreateBooking(ctx, clientID, listingID, 1)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	f.engine.Close()

	// The whole window elapses during the outage.
	f.clock.Add(ResponseWindow + 5*time.Minute)

	restarted := NewEngine(f.db, notify.NewLogNotifier(), f.clock)
	defer restarted.Close()

	if err := restarted.RecoverPendingCancellations(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	// Overdue bookings are cancelled synchronously during recovery, no
	// timer involved.
	if got := f.bookingStatus(t, b.ID); got != bookings.StatusCancelled {
		t.Fatalf("overdue booking not cancelled: %q", got)
	}
	if got := restarted.sched.Pending(); got != 0 {
		t.Fatalf("pending timers: want 0, got %d", got)
	}
	if got := f.balance(t, clientID); got != 50000 {
		t.Fatalf("refund: want 50000, got %d", got)
	}
}

func TestRecovery_IgnoresResolvedBookings(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	ctx := context.Background()

	active, err := f.engine.CreateBooking(ctx, clientID, listingID, 2)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if _, err := f.engine.RecordProviderResponse(ctx, active.ID, providerID, "creds"); err != nil {
		t.Fatalf("record response: %v", err)
	}

	f.engine.Close()
	f.clock.Add(time.Hour)

	restarted := NewEngine(f.db, notify.NewLogNotifier(), f.clock)
	defer restarted.Close()

	if err := restarted.RecoverPendingCancellations(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if got := restarted.sched.Pending(); got != 0 {
		t.Fatalf("timers armed for resolved bookings: %d", got)
	}
	if got := f.bookingStatus(t, active.ID); got != bookings.StatusActive {
		t.Fatalf("active booking touched by recovery: %q", got)
	}
}
