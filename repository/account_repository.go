package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"mealswap/database"
	"mealswap/models"
)

// AccountRepository implements the AccountRepository interface.
// It is the sole writer of the balance columns; every mutation is a
// conditional single-row UPDATE so the row lock taken by the statement
// serializes concurrent writers for the rest of the transaction.
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

// GetByUserID retrieves an account by its user ID
func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	query := `
		SELECT user_id, username, spendable_balance, locked_balance, swap_count, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.Username,
		&account.SpendableBalance,
		&account.LockedBalance,
		&account.SwapCount,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", userID, err)
	}

	return &account, nil
}

// Create creates a new account with the given starting balance
func (r *AccountRepository) Create(ctx context.Context, userID uuid.UUID, username string, startingBalance decimal.Decimal) (*models.Account, error) {
	query := `
		INSERT INTO accounts (user_id, username, spendable_balance)
		VALUES ($1, $2, $3)
		RETURNING user_id, username, spendable_balance, locked_balance, swap_count, created_at, updated_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, userID, username, startingBalance).Scan(
		&account.UserID,
		&account.Username,
		&account.SpendableBalance,
		&account.LockedBalance,
		&account.SwapCount,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", userID, err)
	}

	return &account, nil
}

// DebitToEscrow moves amount from spendable to locked balance, refusing the
// update if it would push spendable below -maxDebt. Returns false with no
// mutation when the debt floor would be breached; two concurrent calls
// against a balance at the floor cannot both succeed.
func (r *AccountRepository) DebitToEscrow(ctx context.Context, userID uuid.UUID, amount, maxDebt decimal.Decimal) (bool, error) {
	query := `
		UPDATE accounts
		SET spendable_balance = spendable_balance - $1,
		    locked_balance = locked_balance + $1,
		    updated_at = NOW()
		WHERE user_id = $2
		  AND spendable_balance - $1 >= -$3
	`

	result, err := r.q.Exec(ctx, query, amount, userID, maxDebt)
	if err != nil {
		return false, fmt.Errorf("failed to lock escrow for account %s: %w", userID, err)
	}

	return result.RowsAffected() > 0, nil
}

// ReleaseEscrow removes amount from the account's locked balance without
// touching spendable (the debit happened at lock time). Returns false when
// the locked balance does not cover the amount.
func (r *AccountRepository) ReleaseEscrow(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE accounts
		SET locked_balance = locked_balance - $1,
		    updated_at = NOW()
		WHERE user_id = $2
		  AND locked_balance >= $1
	`

	result, err := r.q.Exec(ctx, query, amount, userID)
	if err != nil {
		return false, fmt.Errorf("failed to release escrow for account %s: %w", userID, err)
	}

	return result.RowsAffected() > 0, nil
}

// RefundEscrow moves amount from locked back to spendable balance.
// Returns false when the locked balance does not cover the amount.
func (r *AccountRepository) RefundEscrow(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE accounts
		SET locked_balance = locked_balance - $1,
		    spendable_balance = spendable_balance + $1,
		    updated_at = NOW()
		WHERE user_id = $2
		  AND locked_balance >= $1
	`

	result, err := r.q.Exec(ctx, query, amount, userID)
	if err != nil {
		return false, fmt.Errorf("failed to refund escrow for account %s: %w", userID, err)
	}

	return result.RowsAffected() > 0, nil
}

// Credit adds amount to the account's spendable balance
func (r *AccountRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET spendable_balance = spendable_balance + $1,
		    updated_at = NOW()
		WHERE user_id = $2
	`

	result, err := r.q.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to credit account %s: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", userID)
	}

	return nil
}

// IncrementSwapCount bumps the account's lifetime swap counter
func (r *AccountRepository) IncrementSwapCount(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE accounts
		SET swap_count = swap_count + 1,
		    updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.q.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment swap count for account %s: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", userID)
	}

	return nil
}
