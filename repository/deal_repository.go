package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mealswap/database"
	"mealswap/models"
)

// DealRepository implements the DealRepository interface
type DealRepository struct {
	q queryable
}

// NewDealRepository creates a new deal repository
func NewDealRepository(db *database.DB) *DealRepository {
	return &DealRepository{q: db.Pool}
}

// newDealRepositoryWithTx creates a new deal repository with a transaction
func newDealRepositoryWithTx(tx queryable) *DealRepository {
	return &DealRepository{q: tx}
}

const dealColumns = `id, offer_id, request_id, provider_id, buyer_id, token_amount, escrow_locked, status, created_at, completed_at`

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var deal models.Deal
	err := row.Scan(
		&deal.ID,
		&deal.OfferID,
		&deal.RequestID,
		&deal.ProviderID,
		&deal.BuyerID,
		&deal.TokenAmount,
		&deal.EscrowLocked,
		&deal.Status,
		&deal.CreatedAt,
		&deal.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

// GetByID retrieves a deal by its ID
func (r *DealRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = $1`, dealColumns)

	deal, err := scanDeal(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal %s: %w", id, err)
	}

	return deal, nil
}

// GetByIDForUpdate retrieves a deal and takes its row lock for the rest of
// the transaction, serializing concurrent Complete/Cancel attempts.
func (r *DealRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = $1 FOR UPDATE`, dealColumns)

	deal, err := scanDeal(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal %s for update: %w", id, err)
	}

	return deal, nil
}

// Create persists a new deal
func (r *DealRepository) Create(ctx context.Context, deal *models.Deal) error {
	query := `
		INSERT INTO deals (offer_id, request_id, provider_id, buyer_id, token_amount, escrow_locked, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		deal.OfferID,
		deal.RequestID,
		deal.ProviderID,
		deal.BuyerID,
		deal.TokenAmount,
		deal.EscrowLocked,
		deal.Status,
	).Scan(&deal.ID, &deal.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}

	return nil
}

// Update persists a deal's status and completion timestamp
func (r *DealRepository) Update(ctx context.Context, deal *models.Deal) error {
	query := `
		UPDATE deals
		SET escrow_locked = $1, status = $2, completed_at = $3
		WHERE id = $4
	`

	result, err := r.q.Exec(ctx, query, deal.EscrowLocked, deal.Status, deal.CompletedAt, deal.ID)
	if err != nil {
		return fmt.Errorf("failed to update deal %s: %w", deal.ID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("deal %s not found", deal.ID)
	}

	return nil
}

// GetActiveByUser returns accepted deals where the user is a party
func (r *DealRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Deal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals
		WHERE (provider_id = $1 OR buyer_id = $1) AND status = 'accepted'
		ORDER BY created_at DESC
	`, dealColumns)

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active deals for user %s: %w", userID, err)
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, deal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deals: %w", err)
	}

	return deals, nil
}
