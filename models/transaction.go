package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the type of ledger entry
type TransactionType string

const (
	TransactionTypeEarn          TransactionType = "earn"
	TransactionTypeSpend         TransactionType = "spend"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeEscrowLock    TransactionType = "escrow_lock"
	TransactionTypeEscrowRelease TransactionType = "escrow_release"
)

// TransactionCursor is a keyset pagination marker into a user's ledger,
// ordered most-recent-first by (created_at, id).
type TransactionCursor struct {
	CreatedAt time.Time
	ID        int64
}

// Transaction is an append-only ledger entry recorded alongside every
// balance mutation. The sum of a user's amounts, replayed in created_at
// order, reproduces their current spendable balance.
type Transaction struct {
	ID          int64           `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	DealID      *uuid.UUID      `db:"deal_id"`
	Type        TransactionType `db:"type"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}
