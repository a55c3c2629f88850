package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/subshare/subshare/internal/repos/listings"
)

var _ listings.Listings = (*listingsRepo)(nil)

type listingsRepo struct{ db *sql.DB }

func New(db *sql.DB) *listingsRepo {
	return &listingsRepo{db: db}
}

const selectColumns = `id, provider_id, price_per_day, available_slots, max_slots, status`

func (r *listingsRepo) Get(ctx context.Context, listingID uint64) (*listings.Listing, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM listings
		WHERE id = $1
	`, listingID)

	return scanListing(row)
}

// LockAndGet acquires a row lock on the listing so concurrent bookings
// against the same listing serialize on the slot check.
func (r *listingsRepo) LockAndGet(tx *sql.Tx, listingID uint64) (*listings.Listing, error) {
	row := tx.QueryRow(`
		SELECT `+selectColumns+`
		FROM listings
		WHERE id = $1
		FOR UPDATE
	`, listingID)

	return scanListing(row)
}

// DecrementSlots takes one slot. The guard keeps available_slots from going
// negative even without a prior row lock; zero rows affected means the
// listing was full (or absent).
func (r *listingsRepo) DecrementSlots(tx *sql.Tx, listingID uint64) error {
	res, err := tx.Exec(`
		UPDATE listings
		SET available_slots = available_slots - 1
		WHERE id = $1
		  AND available_slots > 0
	`, listingID)
	if err != nil {
		return fmt.Errorf("decrement slots: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return listings.ErrNoFreeSlots
	}

	return nil
}

// IncrementSlots returns a slot on cancellation or completion, capped at
// max_slots. Zero rows affected means the listing already sits at max (or
// is absent); callers release slots they previously took, so that is a
// no-op rather than an error.
func (r *listingsRepo) IncrementSlots(tx *sql.Tx, listingID uint64) error {
	_, err := tx.Exec(`
		UPDATE listings
		SET available_slots = available_slots + 1
		WHERE id = $1
		  AND available_slots < max_slots
	`, listingID)
	if err != nil {
		return fmt.Errorf("increment slots: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*listings.Listing, error) {
	var l listings.Listing

	err := row.Scan(&l.ID, &l.ProviderID, &l.PricePerDay, &l.AvailableSlots, &l.MaxSlots, &l.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listings.ErrListingNotFound
		}

		return nil, fmt.Errorf("scan listing: %w", err)
	}

	return &l, nil
}
