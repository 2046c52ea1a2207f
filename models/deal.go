package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealStatus represents the state of a deal.
// Completed and cancelled are terminal.
type DealStatus string

const (
	DealStatusAccepted  DealStatus = "accepted"
	DealStatusCompleted DealStatus = "completed"
	DealStatusCancelled DealStatus = "cancelled"
)

// Deal is the binding two-party agreement formed when one user accepts
// another's listing. Exactly one of OfferID/RequestID is set. TokenAmount
// is copied from the listing's price at acceptance time and never changes.
type Deal struct {
	ID           uuid.UUID       `db:"id"`
	OfferID      *uuid.UUID      `db:"offer_id"`
	RequestID    *uuid.UUID      `db:"request_id"`
	ProviderID   uuid.UUID       `db:"provider_id"`
	BuyerID      uuid.UUID       `db:"buyer_id"`
	TokenAmount  decimal.Decimal `db:"token_amount"`
	EscrowLocked bool            `db:"escrow_locked"`
	Status       DealStatus      `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	CompletedAt  *time.Time      `db:"completed_at"`
}

// IsParticipant checks if a user is one of the two parties of the deal
func (d *Deal) IsParticipant(userID uuid.UUID) bool {
	return d.ProviderID == userID || d.BuyerID == userID
}

// IsTerminal reports whether the deal can no longer be mutated
func (d *Deal) IsTerminal() bool {
	return d.Status == DealStatusCompleted || d.Status == DealStatusCancelled
}

// ListingID returns the identifier of the listing the deal was formed from
func (d *Deal) ListingID() uuid.UUID {
	if d.OfferID != nil {
		return *d.OfferID
	}
	return *d.RequestID
}
