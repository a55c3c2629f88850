package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/subshare/subshare/internal/repos/ledger"
)

var _ ledger.Entries = (*entriesRepo)(nil)

type entriesRepo struct{ db *sql.DB }

func New(db *sql.DB) *entriesRepo {
	return &entriesRepo{db: db}
}

// Insert appends an entry inside the same transaction that moves the
// balance, so entry and balance can never drift within a committed tx.
func (r *entriesRepo) Insert(tx *sql.Tx, accountID uint64, amount int64, dir ledger.Direction, description string, bookingID *uuid.UUID) (int64, error) {
	var id int64

	err := tx.QueryRow(`
		INSERT INTO ledger_entries (account_id, amount, direction, description, booking_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, accountID, amount, dir, description, bookingID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}

	return id, nil
}

func (r *entriesRepo) ListByAccount(ctx context.Context, accountID uint64) ([]ledger.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, amount, direction, description, booking_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry

	for rows.Next() {
		var (
			e         ledger.Entry
			bookingID uuid.NullUUID
		)

		err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Direction, &e.Description, &bookingID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		if bookingID.Valid {
			id := bookingID.UUID
			e.BookingID = &id
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries rows: %w", err)
	}

	return out, nil
}

// SumByAccount replays the ledger: credits count positive, debits negative.
func (r *entriesRepo) SumByAccount(ctx context.Context, accountID uint64) (int64, error) {
	var sum int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE direction WHEN 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum entries: %w", err)
	}

	return sum, nil
}
