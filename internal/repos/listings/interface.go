package listings

import (
	"context"
	"database/sql"
	"errors"
)

var ErrListingNotFound = errors.New("listing not found")
var ErrNoFreeSlots = errors.New("no free slots")

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Listing is a provider's offer of shared access with a finite slot count.
type Listing struct {
	ID             uint64
	ProviderID     uint64
	PricePerDay    int64
	AvailableSlots int
	MaxSlots       int
	Status         Status
}

type Listings interface {
	Get(ctx context.Context, listingID uint64) (*Listing, error)
	LockAndGet(tx *sql.Tx, listingID uint64) (*Listing, error)
	DecrementSlots(tx *sql.Tx, listingID uint64) error
	IncrementSlots(tx *sql.Tx, listingID uint64) error
}
