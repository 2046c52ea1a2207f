package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mealswap/events"
	"mealswap/models"
)

// Account balance primitives. Each runs inside the caller's unit of work so
// the balance mutation, its ledger entry, and any deal/listing change commit
// together or not at all. The conditional UPDATEs in the account repository
// are the per-account serialization point: two concurrent escrow locks
// against a balance at the debt floor cannot both succeed.

// CanAfford reports whether userID can spend amount without breaching the
// debt floor, and returns the account for further validation.
func CanAfford(ctx context.Context, uow UnitOfWork, userID uuid.UUID, amount, maxDebt decimal.Decimal) (bool, *models.Account, error) {
	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return false, nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return account.CanAfford(amount, maxDebt), account, nil
}

// LockEscrow moves amount from the buyer's spendable balance into escrow and
// appends the escrow_lock ledger entry. Fails with ErrInsufficientFunds when
// the debit would breach the debt floor; the enclosing transaction must then
// roll back so no deal or listing transition persists.
func LockEscrow(ctx context.Context, uow UnitOfWork, buyerID uuid.UUID, amount decimal.Decimal, dealID uuid.UUID, maxDebt decimal.Decimal) error {
	buyer, err := uow.AccountRepository().GetByUserID(ctx, buyerID)
	if err != nil {
		return fmt.Errorf("failed to get buyer account: %w", err)
	}
	if buyer == nil {
		return fmt.Errorf("buyer account %s: %w", buyerID, ErrNotFound)
	}

	ok, err := uow.AccountRepository().DebitToEscrow(ctx, buyerID, amount, maxDebt)
	if err != nil {
		return fmt.Errorf("failed to debit buyer to escrow: %w", err)
	}
	if !ok {
		return &InsufficientFundsError{
			Available: buyer.SpendableBalance,
			Requested: amount,
			MaxDebt:   maxDebt,
		}
	}

	txn := &models.Transaction{
		UserID:      buyerID,
		DealID:      &dealID,
		Type:        models.TransactionTypeEscrowLock,
		Amount:      amount.Neg(),
		Description: "Tokens locked in escrow for meal deal",
	}
	if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
		return fmt.Errorf("failed to record escrow lock: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          buyerID,
		OldBalance:      buyer.SpendableBalance,
		NewBalance:      buyer.SpendableBalance.Sub(amount),
		TransactionType: models.TransactionTypeEscrowLock,
		ChangeAmount:    amount.Neg(),
	})

	return nil
}

// ReleaseEscrowToProvider resolves a locked escrow on completion: the tokens
// leave the buyer's locked balance (spendable was already debited at lock
// time) and arrive in the provider's spendable balance. Both updates belong
// to the same transaction and become visible atomically. Fails with
// ErrDealNotEscrowed when the buyer's locked balance does not cover the
// amount.
func ReleaseEscrowToProvider(ctx context.Context, uow UnitOfWork, buyerID, providerID uuid.UUID, amount decimal.Decimal, dealID uuid.UUID) error {
	provider, err := uow.AccountRepository().GetByUserID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("failed to get provider account: %w", err)
	}
	if provider == nil {
		return fmt.Errorf("provider account %s: %w", providerID, ErrNotFound)
	}

	ok, err := uow.AccountRepository().ReleaseEscrow(ctx, buyerID, amount)
	if err != nil {
		return fmt.Errorf("failed to release buyer escrow: %w", err)
	}
	if !ok {
		return fmt.Errorf("deal %s buyer %s: %w", dealID, buyerID, ErrDealNotEscrowed)
	}

	if err := uow.AccountRepository().Credit(ctx, providerID, amount); err != nil {
		return fmt.Errorf("failed to credit provider: %w", err)
	}

	// The buyer's spendable balance was debited at lock time, so the
	// release entry records zero net change; the ledger replay invariant
	// depends on this.
	buyerTxn := &models.Transaction{
		UserID:      buyerID,
		DealID:      &dealID,
		Type:        models.TransactionTypeEscrowRelease,
		Amount:      decimal.Zero,
		Description: "Escrow released to provider",
	}
	if err := uow.TransactionRepository().Record(ctx, buyerTxn); err != nil {
		return fmt.Errorf("failed to record escrow release: %w", err)
	}

	providerTxn := &models.Transaction{
		UserID:      providerID,
		DealID:      &dealID,
		Type:        models.TransactionTypeEarn,
		Amount:      amount,
		Description: "Tokens earned for providing a meal",
	}
	if err := uow.TransactionRepository().Record(ctx, providerTxn); err != nil {
		return fmt.Errorf("failed to record provider earning: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          providerID,
		OldBalance:      provider.SpendableBalance,
		NewBalance:      provider.SpendableBalance.Add(amount),
		TransactionType: models.TransactionTypeEarn,
		ChangeAmount:    amount,
	})

	return nil
}

// RefundEscrow returns a locked escrow to the buyer's spendable balance on
// cancellation, restoring the pre-lock amount exactly.
func RefundEscrow(ctx context.Context, uow UnitOfWork, buyerID uuid.UUID, amount decimal.Decimal, dealID uuid.UUID) error {
	buyer, err := uow.AccountRepository().GetByUserID(ctx, buyerID)
	if err != nil {
		return fmt.Errorf("failed to get buyer account: %w", err)
	}
	if buyer == nil {
		return fmt.Errorf("buyer account %s: %w", buyerID, ErrNotFound)
	}

	ok, err := uow.AccountRepository().RefundEscrow(ctx, buyerID, amount)
	if err != nil {
		return fmt.Errorf("failed to refund buyer escrow: %w", err)
	}
	if !ok {
		return fmt.Errorf("deal %s buyer %s: %w", dealID, buyerID, ErrDealNotEscrowed)
	}

	txn := &models.Transaction{
		UserID:      buyerID,
		DealID:      &dealID,
		Type:        models.TransactionTypeRefund,
		Amount:      amount,
		Description: "Escrow refunded after cancellation",
	}
	if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          buyerID,
		OldBalance:      buyer.SpendableBalance,
		NewBalance:      buyer.SpendableBalance.Add(amount),
		TransactionType: models.TransactionTypeRefund,
		ChangeAmount:    amount,
	})

	return nil
}
