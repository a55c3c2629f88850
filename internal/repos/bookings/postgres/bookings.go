package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/subshare/subshare/internal/repos/bookings"
)

var _ bookings.Bookings = (*bookingsRepo)(nil)

type bookingsRepo struct{ db *sql.DB }

func New(db *sql.DB) *bookingsRepo {
	return &bookingsRepo{db: db}
}

const selectColumns = `id, client_id, provider_id, listing_id, payment_id, price_charged,
	rental_start, rental_end, status, shared_credentials,
	cancelled_at, cancellation_reason, completed_at, created_at`

func (r *bookingsRepo) Insert(tx *sql.Tx, b *bookings.Booking) error {
	_, err := tx.Exec(`
		INSERT INTO bookings (
			id, client_id, provider_id, listing_id, payment_id, price_charged,
			rental_start, rental_end, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.ClientID, b.ProviderID, b.ListingID, b.PaymentID, b.PriceCharged,
		b.RentalStart, b.RentalEnd, b.Status, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	return nil
}

// SetPaymentID links the booking to the debit ledger entry that paid for
// it. The booking row is inserted before the entry, so the link is
// back-filled within the same transaction.
func (r *bookingsRepo) SetPaymentID(tx *sql.Tx, bookingID uuid.UUID, paymentID int64) error {
	_, err := tx.Exec(`
		UPDATE bookings
		SET payment_id = $2
		WHERE id = $1
	`, bookingID, paymentID)
	if err != nil {
		return fmt.Errorf("set payment id: %w", err)
	}

	return nil
}

func (r *bookingsRepo) Get(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM bookings
		WHERE id = $1
	`, bookingID)

	return scanBooking(row)
}

// LockAndGet acquires the per-booking row lock. Every status transition goes
// through this lock, which linearizes createBooking, provider response,
// timeout cancellation and expiry for the same booking id.
func (r *bookingsRepo) LockAndGet(tx *sql.Tx, bookingID uuid.UUID) (*bookings.Booking, error) {
	row := tx.QueryRow(`
		SELECT `+selectColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID)

	return scanBooking(row)
}

func (r *bookingsRepo) MarkActive(tx *sql.Tx, bookingID uuid.UUID, credentials string) error {
	return r.guardedUpdate(tx, `
		UPDATE bookings
		SET status = 'active', shared_credentials = $2
		WHERE id = $1
		  AND status = 'confirmed'
	`, bookingID, credentials)
}

func (r *bookingsRepo) MarkCancelled(tx *sql.Tx, bookingID uuid.UUID, reason string, at time.Time) error {
	return r.guardedUpdate(tx, `
		UPDATE bookings
		SET status = 'cancelled', cancellation_reason = $2, cancelled_at = $3
		WHERE id = $1
		  AND status IN ('confirmed', 'active')
	`, bookingID, reason, at)
}

func (r *bookingsRepo) MarkCompleted(tx *sql.Tx, bookingID uuid.UUID, at time.Time) error {
	return r.guardedUpdate(tx, `
		UPDATE bookings
		SET status = 'completed', completed_at = $2
		WHERE id = $1
		  AND status = 'active'
	`, bookingID, at)
}

func (r *bookingsRepo) MarkDisputed(tx *sql.Tx, bookingID uuid.UUID) error {
	return r.guardedUpdate(tx, `
		UPDATE bookings
		SET status = 'disputed'
		WHERE id = $1
		  AND status = 'active'
	`, bookingID)
}

func (r *bookingsRepo) ListByStatus(ctx context.Context, status bookings.Status) ([]bookings.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM bookings
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var out []bookings.Booking

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by status rows: %w", err)
	}

	return out, nil
}

// ListActiveEndedBefore feeds the expiry sweep. Only bookings still active
// are returned, so the transition itself invalidates the query and nothing
// is handed out twice within one sweep.
func (r *bookingsRepo) ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM bookings
		WHERE status = 'active'
		  AND rental_end <= $1
		ORDER BY rental_end
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("scan booking id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired rows: %w", err)
	}

	return ids, nil
}

func (r *bookingsRepo) guardedUpdate(tx *sql.Tx, query string, args ...any) error {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return bookings.ErrStatusChanged
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*bookings.Booking, error) {
	var (
		b           bookings.Booking
		paymentID   sql.NullInt64
		credentials sql.NullString
		cancelledAt sql.NullTime
		reason      sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&b.ID, &b.ClientID, &b.ProviderID, &b.ListingID, &paymentID, &b.PriceCharged,
		&b.RentalStart, &b.RentalEnd, &b.Status, &credentials,
		&cancelledAt, &reason, &completedAt, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookings.ErrBookingNotFound
		}

		return nil, fmt.Errorf("scan booking: %w", err)
	}

	if paymentID.Valid {
		b.PaymentID = &paymentID.Int64
	}
	if credentials.Valid {
		b.SharedCredentials = &credentials.String
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	if reason.Valid {
		b.CancellationReason = &reason.String
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}

	return &b, nil
}
