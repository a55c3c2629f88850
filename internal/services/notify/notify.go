// Package notify is the engine's outbound notification surface. Delivery is
// fire-and-forget: a failed notification never rolls back the state
// transition that produced it.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Notifier receives booking lifecycle events after they have committed.
// Implementations must not block for long and must swallow delivery errors
// (logging them is fine).
type Notifier interface {
	BookingCreated(ctx context.Context, bookingID uuid.UUID, clientID, providerID uint64)
	AccessShared(ctx context.Context, bookingID uuid.UUID, clientID uint64)
	BookingAutoCancelled(ctx context.Context, bookingID uuid.UUID, clientID, providerID uint64)
	RentalCompleted(ctx context.Context, bookingID uuid.UUID, clientID uint64)
}

// LogNotifier writes notifications to the process log. It stands in for the
// external delivery system in development and tests.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) BookingCreated(_ context.Context, bookingID uuid.UUID, clientID, providerID uint64) {
	slog.Info("notify: booking created", "booking_id", bookingID, "client_id", clientID, "provider_id", providerID)
}

func (n *LogNotifier) AccessShared(_ context.Context, bookingID uuid.UUID, clientID uint64) {
	slog.Info("notify: access shared", "booking_id", bookingID, "client_id", clientID)
}

func (n *LogNotifier) BookingAutoCancelled(_ context.Context, bookingID uuid.UUID, clientID, providerID uint64) {
	slog.Info("notify: booking auto-cancelled", "booking_id", bookingID, "client_id", clientID, "provider_id", providerID)
}

func (n *LogNotifier) RentalCompleted(_ context.Context, bookingID uuid.UUID, clientID uint64) {
	slog.Info("notify: rental completed", "booking_id", bookingID, "client_id", clientID)
}
