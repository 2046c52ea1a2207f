package api

import (
	"time"

	"github.com/shopspring/decimal"

	"mealswap/models"
)

// DealDTO represents a deal in API responses
type DealDTO struct {
	ID           string          `json:"id"`
	OfferID      *string         `json:"offer_id,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	ProviderID   string          `json:"provider_id"`
	BuyerID      string          `json:"buyer_id"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	EscrowLocked bool            `json:"escrow_locked"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
}

func toDealDTO(deal *models.Deal) DealDTO {
	dto := DealDTO{
		ID:           deal.ID.String(),
		ProviderID:   deal.ProviderID.String(),
		BuyerID:      deal.BuyerID.String(),
		TokenAmount:  deal.TokenAmount,
		EscrowLocked: deal.EscrowLocked,
		Status:       string(deal.Status),
		CreatedAt:    deal.CreatedAt.Format(time.RFC3339),
	}
	if deal.OfferID != nil {
		s := deal.OfferID.String()
		dto.OfferID = &s
	}
	if deal.RequestID != nil {
		s := deal.RequestID.String()
		dto.RequestID = &s
	}
	if deal.CompletedAt != nil {
		s := deal.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

// WalletDTO represents a user's balances in API responses
type WalletDTO struct {
	UserID           string          `json:"user_id"`
	SpendableBalance decimal.Decimal `json:"spendable_balance"`
	LockedBalance    decimal.Decimal `json:"locked_balance"`
	TotalHoldings    decimal.Decimal `json:"total_holdings"`
}

// TransactionDTO represents one ledger entry in API responses
type TransactionDTO struct {
	ID          int64           `json:"id"`
	DealID      *string         `json:"deal_id,omitempty"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
}

func toTransactionDTO(txn *models.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          txn.ID,
		Type:        string(txn.Type),
		Amount:      txn.Amount,
		Description: txn.Description,
		CreatedAt:   txn.CreatedAt.Format(time.RFC3339Nano),
	}
	if txn.DealID != nil {
		s := txn.DealID.String()
		dto.DealID = &s
	}
	return dto
}

// CursorDTO is the keyset position to resume a transaction page from.
// Clients pass it back verbatim as cursor_at / cursor_id query parameters.
type CursorDTO struct {
	CreatedAt string `json:"created_at"`
	ID        int64  `json:"id"`
}

// TransactionPageDTO is one page of a user's ledger
type TransactionPageDTO struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   *CursorDTO       `json:"next_cursor,omitempty"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error string `json:"error"`
}
