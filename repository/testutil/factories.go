package testutil

import (
	"time"

	"mealswap/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTestListing creates a pending offer listing with default values
func CreateTestListing(ownerID uuid.UUID) *models.Listing {
	now := time.Now()
	return &models.Listing{
		Kind:       models.ListingKindOffer,
		OwnerID:    ownerID,
		Location:   "North Dining Hall",
		MealType:   models.MealTypeLunch,
		MealDate:   now.Add(26 * time.Hour),
		TokenPrice: decimal.NewFromInt(1),
		Status:     models.ListingStatusPending,
		ExpiresAt:  now.Add(24 * time.Hour),
	}
}

// CreateTestRequest creates a pending request listing
func CreateTestRequest(ownerID uuid.UUID) *models.Listing {
	listing := CreateTestListing(ownerID)
	listing.Kind = models.ListingKindRequest
	return listing
}

// CreateTestListingWithPrice creates a pending offer with a specific price
func CreateTestListingWithPrice(ownerID uuid.UUID, price decimal.Decimal) *models.Listing {
	listing := CreateTestListing(ownerID)
	listing.TokenPrice = price
	return listing
}

// CreateTestDeal creates an accepted deal between two users over an offer
func CreateTestDeal(offerID uuid.UUID, providerID, buyerID uuid.UUID, amount decimal.Decimal) *models.Deal {
	return &models.Deal{
		OfferID:      &offerID,
		ProviderID:   providerID,
		BuyerID:      buyerID,
		TokenAmount:  amount,
		EscrowLocked: true,
		Status:       models.DealStatusAccepted,
	}
}

// CreateTestTransaction creates a ledger entry with default values
func CreateTestTransaction(userID uuid.UUID, txnType models.TransactionType, amount decimal.Decimal) *models.Transaction {
	return &models.Transaction{
		UserID:      userID,
		Type:        txnType,
		Amount:      amount,
		Description: "test entry",
	}
}
