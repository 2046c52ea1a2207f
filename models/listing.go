package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingKind distinguishes an offer (meal to give) from a request (meal wanted)
type ListingKind string

const (
	ListingKindOffer   ListingKind = "offer"
	ListingKindRequest ListingKind = "request"
)

// ListingStatus represents the lifecycle state of a listing
type ListingStatus string

const (
	ListingStatusPending   ListingStatus = "pending"
	ListingStatusAccepted  ListingStatus = "accepted"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// MealType is the meal slot a listing is for
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
)

// Listing is a posted offer or request, prior to being matched into a deal
type Listing struct {
	ID         uuid.UUID       `db:"id"`
	Kind       ListingKind     `db:"kind"`
	OwnerID    uuid.UUID       `db:"owner_id"`
	Location   string          `db:"location"`
	MealType   MealType        `db:"meal_type"`
	MealDate   time.Time       `db:"meal_date"`
	TokenPrice decimal.Decimal `db:"token_price"`
	Status     ListingStatus   `db:"status"`
	ExpiresAt  time.Time       `db:"expires_at"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// IsPending reports whether the listing can still be accepted
func (l *Listing) IsPending() bool {
	return l.Status == ListingStatusPending
}

// IsOwnedBy reports whether the given user posted this listing
func (l *Listing) IsOwnedBy(userID uuid.UUID) bool {
	return l.OwnerID == userID
}
