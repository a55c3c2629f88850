package bookings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrBookingNotFound = errors.New("booking not found")

// ErrStatusChanged signals that a guarded transition matched zero rows: the
// booking's status moved between the caller's check and the update.
var ErrStatusChanged = errors.New("booking status changed")

type Status string

const (
	// StatusPending exists for flows where payment settles asynchronously.
	// The engine creates bookings directly in StatusConfirmed once the
	// client's wallet has been debited.
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// Booking is a single rental agreement between a client and a provider.
// Rows are never deleted; terminal bookings stay as an audit trail.
type Booking struct {
	ID                 uuid.UUID
	ClientID           uint64
	ProviderID         uint64
	ListingID          uint64
	PaymentID          *int64
	PriceCharged       int64
	RentalStart        time.Time
	RentalEnd          time.Time
	Status             Status
	SharedCredentials  *string
	CancelledAt        *time.Time
	CancellationReason *string
	CompletedAt        *time.Time
	CreatedAt          time.Time
}

type Bookings interface {
	Insert(tx *sql.Tx, b *Booking) error
	SetPaymentID(tx *sql.Tx, bookingID uuid.UUID, paymentID int64) error
	Get(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	LockAndGet(tx *sql.Tx, bookingID uuid.UUID) (*Booking, error)
	MarkActive(tx *sql.Tx, bookingID uuid.UUID, credentials string) error
	MarkCancelled(tx *sql.Tx, bookingID uuid.UUID, reason string, at time.Time) error
	MarkCompleted(tx *sql.Tx, bookingID uuid.UUID, at time.Time) error
	MarkDisputed(tx *sql.Tx, bookingID uuid.UUID) error
	ListByStatus(ctx context.Context, status Status) ([]Booking, error)
	ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
