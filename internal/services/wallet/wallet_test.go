package wallet

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/subshare/subshare/internal/infra/pgtestutil"
	"github.com/subshare/subshare/internal/repos/accounts"
	"github.com/subshare/subshare/internal/repos/ledger"
)

func newService(t *testing.T) (*Service, *sql.DB, func()) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)

	_, err := db.Exec(`INSERT INTO accounts (id, balance) VALUES (1, 0)`)
	if err != nil {
		cleanup()
		t.Fatalf("seed account: %v", err)
	}

	return New(db), db, cleanup
}

func TestWallet_TopUp(t *testing.T) {
	t.Parallel()

	svc, _, cleanup := newService(t)
	defer cleanup()

	ctx := context.Background()

	entryID, err := svc.TopUp(ctx, 1, 10_000, "stripe:ch_123")
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if entryID == 0 {
		t.Fatal("entry id not returned")
	}

	balance, err := svc.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 10_000 {
		t.Fatalf("balance: want 10000, got %d", balance)
	}

	entries, err := svc.Entries(ctx, 1)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	if entries[0].Direction != ledger.DirCredit || entries[0].Amount != 10_000 {
		t.Fatalf("entry mismatch: %+v", entries[0])
	}
	if entries[0].Description != "wallet top-up: stripe:ch_123" {
		t.Fatalf("description: got %q", entries[0].Description)
	}
}

func TestWallet_TopUp_Rejections(t *testing.T) {
	t.Parallel()

	svc, _, cleanup := newService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := svc.TopUp(ctx, 1, 0, "ref")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: want ErrInvalidAmount, got %v", err)
	}

	_, err = svc.TopUp(ctx, 1, -500, "ref")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: want ErrInvalidAmount, got %v", err)
	}

	_, err = svc.TopUp(ctx, 999, 100, "ref")
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("missing account: want ErrAccountNotFound, got %v", err)
	}

	// None of the rejections left a ledger entry behind.
	entries, err := svc.Entries(ctx, 1)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected top-ups wrote entries: %+v", entries)
	}
}

func TestWallet_GetBalance_UnknownAccount(t *testing.T) {
	t.Parallel()

	svc, _, cleanup := newService(t)
	defer cleanup()

	_, err := svc.GetBalance(context.Background(), 999)
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}

	_, err = svc.Entries(context.Background(), 999)
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("entries: want ErrAccountNotFound, got %v", err)
	}
}

func TestWallet_Reconcile(t *testing.T) {
	t.Parallel()

	svc, db, cleanup := newService(t)
	defer cleanup()

	ctx := context.Background()

	// An account whose history consists only of ledger-backed movements
	// reconciles to zero drift.
	if _, err := svc.TopUp(ctx, 1, 10_000, "ref-a"); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := svc.TopUp(ctx, 1, 2_500, "ref-b"); err != nil {
		t.Fatalf("top up: %v", err)
	}

	report, err := svc.Reconcile(ctx, 1)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Balance != 12_500 || report.LedgerSum != 12_500 || report.Drift != 0 {
		t.Fatalf("clean account must have zero drift: %+v", report)
	}

	// A balance mutation that bypassed the ledger shows up as drift.
	_, err = db.Exec(`UPDATE accounts SET balance = balance + 777 WHERE id = 1`)
	if err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	report, err = svc.Reconcile(ctx, 1)
	if err != nil {
		t.Fatalf("reconcile after drift: %v", err)
	}
	if report.Drift != 777 {
		t.Fatalf("drift: want 777, got %d", report.Drift)
	}
}
