// Package booking owns the rental lifecycle: it moves a booking through
// confirmed -> active -> completed (or cancelled/disputed), keeps the
// client's wallet, the provider's wallet and the listing's slot count in
// step, and guarantees that every confirmed booking is resolved within the
// response window.
//
// Every operation runs in a single database transaction, so the booking
// status, the ledger entries and the slot counter commit or roll back
// together. Per-booking linearization comes from SELECT ... FOR UPDATE on
// the booking row. Lock ordering inside a transaction is always
// booking -> listing -> account, which keeps concurrent create/cancel/expire
// flows deadlock-free.
package booking

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/subshare/subshare/internal/infra/pgutils"
	"github.com/subshare/subshare/internal/repos/accounts"
	pgaccounts "github.com/subshare/subshare/internal/repos/accounts/postgres"
	"github.com/subshare/subshare/internal/repos/bookings"
	pgbookings "github.com/subshare/subshare/internal/repos/bookings/postgres"
	"github.com/subshare/subshare/internal/repos/ledger"
	pgledger "github.com/subshare/subshare/internal/repos/ledger/postgres"
	"github.com/subshare/subshare/internal/repos/listings"
	pglistings "github.com/subshare/subshare/internal/repos/listings/postgres"
	"github.com/subshare/subshare/internal/services/notify"
)

type Engine struct {
	db       *sql.DB
	accounts accounts.Accounts
	listings listings.Listings
	bookings bookings.Bookings
	entries  ledger.Entries
	notifier notify.Notifier
	clock    clock.Clock
	sched    *CancellationScheduler
}

func NewEngine(dbx *sql.DB, notifier notify.Notifier, clk clock.Clock) *Engine {
	e := &Engine{
		db:       dbx,
		accounts: pgaccounts.New(dbx),
		listings: pglistings.New(dbx),
		bookings: pgbookings.New(dbx),
		entries:  pgledger.New(dbx),
		notifier: notifier,
		clock:    clk,
	}
	e.sched = newCancellationScheduler(e, ResponseWindow, clk)

	return e
}

// Close stops all pending cancellation timers. Deadlines survive in the
// booking rows; RecoverPendingCancellations re-arms them on the next start.
func (e *Engine) Close() {
	e.sched.Stop()
}

// CreateBooking validates the request, then atomically debits the client,
// appends the payment ledger entry, inserts the booking in confirmed status
// and takes one listing slot. The cancellation timer is armed only after the
// transaction commits.
func (e *Engine) CreateBooking(ctx context.Context, clientID, listingID uint64, durationDays int) (*bookings.Booking, error) {
	if durationDays < 1 || durationDays > MaxRentalDays {
		return nil, ErrInvalidDuration
	}

	var booked *bookings.Booking

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		listing, err := e.listings.LockAndGet(tx, listingID)
		if err != nil {
			return fmt.Errorf("lock listing: %w", err)
		}

		if listing.Status != listings.StatusActive {
			return ErrListingInactive
		}

		if listing.ProviderID == clientID {
			return ErrOwnListing
		}

		if listing.AvailableSlots == 0 {
			return listings.ErrNoFreeSlots
		}

		price := listing.PricePerDay * int64(durationDays)

		balance, err := e.accounts.LockAndGetBalance(tx, clientID)
		if err != nil {
			return fmt.Errorf("lock client balance: %w", err)
		}

		// pre-check against the locked balance for a clean error
		if balance < price {
			return accounts.ErrInsufficientFunds
		}

		err = e.accounts.DecreaseBalance(tx, clientID, price)
		if err != nil {
			return fmt.Errorf("debit client: %w", err)
		}

		now := e.clock.Now()
		b := &bookings.Booking{
			ID:           uuid.New(),
			ClientID:     clientID,
			ProviderID:   listing.ProviderID,
			ListingID:    listingID,
			PriceCharged: price,
			RentalStart:  now,
			RentalEnd:    now.AddDate(0, 0, durationDays),
			Status:       bookings.StatusConfirmed,
			CreatedAt:    now,
		}

		err = e.bookings.Insert(tx, b)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		paymentID, err := e.entries.Insert(tx, clientID, price, ledger.DirDebit,
			fmt.Sprintf("booking payment for listing %d", listingID), &b.ID)
		if err != nil {
			return fmt.Errorf("append debit entry: %w", err)
		}

		err = e.bookings.SetPaymentID(tx, b.ID, paymentID)
		if err != nil {
			return fmt.Errorf("link payment: %w", err)
		}
		b.PaymentID = &paymentID

		err = e.listings.DecrementSlots(tx, listingID)
		if err != nil {
			return fmt.Errorf("take slot: %w", err)
		}

		booked = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.sched.Arm(booked.ID)
	e.notifier.BookingCreated(ctx, booked.ID, booked.ClientID, booked.ProviderID)
	bookingsCreated.Inc()

	return booked, nil
}

// RecordProviderResponse attaches the shared credentials, activates the
// booking and credits the provider. The scheduler is disarmed before the
// transition so a timer cannot fire after the booking is observably active.
// A provider who responds after the timer already cancelled the booking gets
// ErrAlreadyCancelled, never a silent success.
func (e *Engine) RecordProviderResponse(ctx context.Context, bookingID uuid.UUID, providerID uint64, credentials string) (*bookings.Booking, error) {
	e.sched.Disarm(bookingID)

	var updated *bookings.Booking

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		b, err := e.bookings.LockAndGet(tx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		if b.ProviderID != providerID {
			return ErrNotProvider
		}

		switch b.Status {
		case bookings.StatusConfirmed:
			// proceed
		case bookings.StatusCancelled:
			// the timer won the race
			return ErrAlreadyCancelled
		default:
			return ErrInvalidTransition
		}

		err = e.bookings.MarkActive(tx, bookingID, credentials)
		if err != nil {
			return fmt.Errorf("mark active: %w", err)
		}

		err = e.accounts.IncreaseBalance(tx, b.ProviderID, b.PriceCharged)
		if err != nil {
			return fmt.Errorf("credit provider: %w", err)
		}

		_, err = e.entries.Insert(tx, b.ProviderID, b.PriceCharged, ledger.DirCredit,
			fmt.Sprintf("booking payout for listing %d", b.ListingID), &b.ID)
		if err != nil {
			return fmt.Errorf("append credit entry: %w", err)
		}

		b.Status = bookings.StatusActive
		b.SharedCredentials = &credentials
		updated = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.AccessShared(ctx, updated.ID, updated.ClientID)
	providerResponses.Inc()

	return updated, nil
}

// CancelForTimeout is invoked by the cancellation scheduler (and by the
// recovery bootstrapper for deadlines missed across a restart). If the
// booking is no longer confirmed the race was already resolved and the call
// is a no-op. The refund always uses the stored price_charged, never a live
// listing price.
func (e *Engine) CancelForTimeout(ctx context.Context, bookingID uuid.UUID) error {
	var cancelled *bookings.Booking

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		b, err := e.bookings.LockAndGet(tx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		if b.Status != bookings.StatusConfirmed {
			return nil
		}

		err = e.bookings.MarkCancelled(tx, bookingID, timeoutCancellationReason, e.clock.Now())
		if err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}

		err = e.listings.IncrementSlots(tx, b.ListingID)
		if err != nil {
			return fmt.Errorf("return slot: %w", err)
		}

		err = e.accounts.IncreaseBalance(tx, b.ClientID, b.PriceCharged)
		if err != nil {
			return fmt.Errorf("refund client: %w", err)
		}

		_, err = e.entries.Insert(tx, b.ClientID, b.PriceCharged, ledger.DirCredit,
			"refund: booking auto-cancelled", &b.ID)
		if err != nil {
			return fmt.Errorf("append refund entry: %w", err)
		}

		cancelled = b

		return nil
	})
	if err != nil {
		return err
	}

	if cancelled != nil {
		e.notifier.BookingAutoCancelled(ctx, cancelled.ID, cancelled.ClientID, cancelled.ProviderID)
		autoCancellations.Inc()
	}

	return nil
}

// ExpireBooking completes an active booking whose rental window has elapsed
// and returns its slot. Idempotent: expiring an already-completed booking is
// a no-op.
func (e *Engine) ExpireBooking(ctx context.Context, bookingID uuid.UUID) error {
	var completed *bookings.Booking

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		b, err := e.bookings.LockAndGet(tx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		if b.Status == bookings.StatusCompleted {
			return nil
		}

		if b.Status != bookings.StatusActive {
			return ErrInvalidTransition
		}

		if b.RentalEnd.After(e.clock.Now()) {
			return ErrInvalidTransition
		}

		err = e.bookings.MarkCompleted(tx, bookingID, e.clock.Now())
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}

		err = e.listings.IncrementSlots(tx, b.ListingID)
		if err != nil {
			return fmt.Errorf("return slot: %w", err)
		}

		completed = b

		return nil
	})
	if err != nil {
		return err
	}

	if completed != nil {
		e.notifier.RentalCompleted(ctx, completed.ID, completed.ClientID)
	}

	return nil
}

// OpenDispute moves an active booking to the terminal disputed status. Money
// stays where it is; resolution is a support workflow outside the engine.
func (e *Engine) OpenDispute(ctx context.Context, bookingID uuid.UUID, callerID uint64) error {
	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		b, err := e.bookings.LockAndGet(tx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		if b.ClientID != callerID && b.ProviderID != callerID {
			return ErrNotParticipant
		}

		if b.Status != bookings.StatusActive {
			return ErrInvalidTransition
		}

		err = e.bookings.MarkDisputed(tx, bookingID)
		if err != nil {
			return fmt.Errorf("mark disputed: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// GetBooking fetches a booking for one of its participants.
func (e *Engine) GetBooking(ctx context.Context, bookingID uuid.UUID, callerID uint64) (*bookings.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}

	if b.ClientID != callerID && b.ProviderID != callerID {
		return nil, ErrNotParticipant
	}

	return b, nil
}

// SweepExpired is the batch body of the expiry sweeper. One booking's
// failure never aborts the rest of the batch.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ids, err := e.bookings.ListActiveEndedBefore(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list ended bookings: %w", err)
	}

	expired := 0

	for _, id := range ids {
		err := e.ExpireBooking(ctx, id)
		if err != nil {
			sweepFailures.Inc()
			slog.Error("expiry sweep: booking failed", "booking_id", id, "error", err)

			continue
		}

		expired++
		sweepExpirations.Inc()
	}

	return expired, nil
}
