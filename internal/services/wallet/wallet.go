// Package wallet exposes the ledger to the request layer: balance reads,
// payment-gateway top-up credits, entry history and a balance/ledger
// reconciliation check.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/subshare/subshare/internal/infra/pgutils"
	"github.com/subshare/subshare/internal/repos/accounts"
	pgaccounts "github.com/subshare/subshare/internal/repos/accounts/postgres"
	"github.com/subshare/subshare/internal/repos/ledger"
	pgledger "github.com/subshare/subshare/internal/repos/ledger/postgres"
)

var ErrInvalidAmount = errors.New("amount must be positive")

type Service struct {
	db       *sql.DB
	accounts accounts.Accounts
	entries  ledger.Entries
}

func New(dbx *sql.DB) *Service {
	return &Service{
		db:       dbx,
		accounts: pgaccounts.New(dbx),
		entries:  pgledger.New(dbx),
	}
}

// GetBalance returns the account's stored balance (no locks; read path).
func (s *Service) GetBalance(ctx context.Context, accountID uint64) (int64, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

// TopUp turns a "funds received" event from the payment gateway into a
// wallet credit: balance increment and ledger entry commit together.
func (s *Service) TopUp(ctx context.Context, accountID uint64, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var entryID int64

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.accounts.Exists(tx, accountID)
		if err != nil {
			return fmt.Errorf("check account exists: %w", err)
		}

		err = s.accounts.IncreaseBalance(tx, accountID, amount)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}

		entryID, err = s.entries.Insert(tx, accountID, amount, ledger.DirCredit,
			"wallet top-up: "+reference, nil)
		if err != nil {
			return fmt.Errorf("append credit entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("top up: %w", err)
	}

	return entryID, nil
}

// Entries returns the account's ledger history, oldest first.
func (s *Service) Entries(ctx context.Context, accountID uint64) ([]ledger.Entry, error) {
	_, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}

	entries, err := s.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}

// ReconcileReport compares the stored balance against a replay of the
// account's ledger entries. Drift of zero is the invariant; anything else
// points at an interrupted compensation and needs manual repair.
type ReconcileReport struct {
	AccountID uint64 `json:"accountId"`
	Balance   int64  `json:"balance"`
	LedgerSum int64  `json:"ledgerSum"`
	Drift     int64  `json:"drift"`
}

func (s *Service) Reconcile(ctx context.Context, accountID uint64) (*ReconcileReport, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	sum, err := s.entries.SumByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}

	return &ReconcileReport{
		AccountID: accountID,
		Balance:   balance,
		LedgerSum: sum,
		Drift:     balance - sum,
	}, nil
}
