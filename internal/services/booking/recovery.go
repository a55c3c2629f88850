package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/subshare/subshare/internal/repos/bookings"
)

// RecoverPendingCancellations rebuilds the scheduler's volatile timer state
// from durable booking rows. It must run once at startup, before the engine
// starts taking requests. Confirmed bookings whose deadline still lies ahead
// get a timer for the remaining slice of the original window; bookings whose
// deadline elapsed while the process was down are cancelled on the spot.
func (e *Engine) RecoverPendingCancellations(ctx context.Context) error {
	pending, err := e.bookings.ListByStatus(ctx, bookings.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("list confirmed bookings: %w", err)
	}

	now := e.clock.Now()
	rearmed, overdue := 0, 0

	for _, b := range pending {
		deadline := b.CreatedAt.Add(e.sched.window)

		if deadline.After(now) {
			e.sched.ArmAfter(b.ID, deadline.Sub(now))
			rearmed++

			continue
		}

		err := e.CancelForTimeout(ctx, b.ID)
		if err != nil {
			slog.Error("recovery: overdue cancel failed", "booking_id", b.ID, "error", err)

			continue
		}

		overdue++
	}

	slog.Info("cancellation recovery finished", "rearmed", rearmed, "cancelled_overdue", overdue)

	return nil
}
