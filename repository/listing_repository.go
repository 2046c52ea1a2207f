package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mealswap/database"
	"mealswap/models"
)

// ListingRepository implements the ListingRepository interface
type ListingRepository struct {
	q queryable
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *database.DB) *ListingRepository {
	return &ListingRepository{q: db.Pool}
}

// newListingRepositoryWithTx creates a new listing repository with a transaction
func newListingRepositoryWithTx(tx queryable) *ListingRepository {
	return &ListingRepository{q: tx}
}

const listingColumns = `id, kind, owner_id, location, meal_type, meal_date, token_price, status, expires_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var listing models.Listing
	err := row.Scan(
		&listing.ID,
		&listing.Kind,
		&listing.OwnerID,
		&listing.Location,
		&listing.MealType,
		&listing.MealDate,
		&listing.TokenPrice,
		&listing.Status,
		&listing.ExpiresAt,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetByID retrieves a listing by its ID
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1`, listingColumns)

	listing, err := scanListing(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
	}

	return listing, nil
}

// Create persists a new listing
func (r *ListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	query := `
		INSERT INTO listings (kind, owner_id, location, meal_type, meal_date, token_price, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		listing.Kind,
		listing.OwnerID,
		listing.Location,
		listing.MealType,
		listing.MealDate,
		listing.TokenPrice,
		listing.Status,
		listing.ExpiresAt,
	).Scan(&listing.ID, &listing.CreatedAt, &listing.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// Transition flips a listing's status if and only if its current status
// matches expected. Returns false when another writer got there first;
// the caller treats that as an optimistic-concurrency loss.
func (r *ListingRepository) Transition(ctx context.Context, id uuid.UUID, expected, next models.ListingStatus) (bool, error) {
	query := `
		UPDATE listings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.q.Exec(ctx, query, next, id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to transition listing %s to %s: %w", id, next, err)
	}

	return result.RowsAffected() > 0, nil
}

// GetExpiredPending returns pending listings whose expiry window has passed
func (r *ListingRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Listing, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, listingColumns)

	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return listings, nil
}
