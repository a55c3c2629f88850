package accounts

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrAccountNotFound = errors.New("account not found")

type Accounts interface {
	Exists(tx *sql.Tx, accountID uint64) error
	GetBalance(ctx context.Context, accountID uint64) (int64, error)
	LockAndGetBalance(tx *sql.Tx, accountID uint64) (int64, error)
	IncreaseBalance(tx *sql.Tx, accountID uint64, amount int64) error
	DecreaseBalance(tx *sql.Tx, accountID uint64, amount int64) error
}
