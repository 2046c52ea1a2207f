package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mealswap/database"
	"mealswap/models"
)

// TransactionRepository implements the TransactionRepository interface.
// The transactions table is append-only; entries are never updated or
// deleted once written.
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Record appends a new ledger entry
func (r *TransactionRepository) Record(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, deal_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		txn.UserID,
		txn.DealID,
		txn.Type,
		txn.Amount,
		txn.Description,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record transaction for user %s: %w", txn.UserID, err)
	}

	return nil
}

// GetByUser returns up to limit ledger entries for a user, most recent
// first. A non-nil cursor resumes from strictly before that position.
func (r *TransactionRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *models.TransactionCursor) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, deal_id, type, amount, description, created_at
		FROM transactions
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	var cursorAt *time.Time
	var cursorID int64
	if cursor != nil {
		cursorAt = &cursor.CreatedAt
		cursorID = cursor.ID
	}

	rows, err := r.q.Query(ctx, query, userID, cursorAt, cursorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.DealID,
			&txn.Type,
			&txn.Amount,
			&txn.Description,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}
