package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a community member's token holdings.
// SpendableBalance may go negative down to the configured debt floor;
// LockedBalance is the sum of tokens held in escrow for this user's
// active deals as buyer and is never negative.
type Account struct {
	UserID           uuid.UUID       `db:"user_id"`
	Username         string          `db:"username"`
	SpendableBalance decimal.Decimal `db:"spendable_balance"`
	LockedBalance    decimal.Decimal `db:"locked_balance"`
	SwapCount        int             `db:"swap_count"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// TotalHoldings returns spendable plus locked tokens.
func (a *Account) TotalHoldings() decimal.Decimal {
	return a.SpendableBalance.Add(a.LockedBalance)
}

// CanAfford reports whether spending amount would keep the account at or
// above the debt floor (maxDebt is expressed as a positive number).
func (a *Account) CanAfford(amount, maxDebt decimal.Decimal) bool {
	return a.SpendableBalance.Sub(amount).GreaterThanOrEqual(maxDebt.Neg())
}
