package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirCredit Direction = "credit"
	DirDebit  Direction = "debit"
)

// Entry is one immutable wallet-affecting record. Entries are append-only;
// an account's stored balance must always equal the signed sum of its
// entries.
type Entry struct {
	ID          int64      `json:"id"`
	AccountID   uint64     `json:"accountId"`
	Amount      int64      `json:"amount"`
	Direction   Direction  `json:"direction"`
	Description string     `json:"description"`
	BookingID   *uuid.UUID `json:"bookingId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Entries interface {
	Insert(tx *sql.Tx, accountID uint64, amount int64, dir Direction, description string, bookingID *uuid.UUID) (int64, error)
	ListByAccount(ctx context.Context, accountID uint64) ([]Entry, error)
	SumByAccount(ctx context.Context, accountID uint64) (int64, error)
}
