package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"mealswap/events"
	"mealswap/models"
)

// DefaultTransactionPageSize caps wallet history pages when the caller
// passes no limit, matching the original wallet display.
const DefaultTransactionPageSize = 20

type walletService struct {
	uowFactory      UnitOfWorkFactory
	startingBalance decimal.Decimal
}

// NewWalletService creates a new wallet service
func NewWalletService(uowFactory UnitOfWorkFactory, startingBalance decimal.Decimal) WalletService {
	return &walletService{
		uowFactory:      uowFactory,
		startingBalance: startingBalance,
	}
}

// GetOrCreateAccount retrieves an existing account or seeds a new one with
// the configured starting balance. Seeding records an earn ledger entry so
// replaying the ledger reproduces the balance from the first transaction.
func (s *walletService) GetOrCreateAccount(ctx context.Context, userID uuid.UUID, username string) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil {
		return account, nil
	}

	account, err = uow.AccountRepository().Create(ctx, userID, username, s.startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if s.startingBalance.IsPositive() {
		txn := &models.Transaction{
			UserID:      userID,
			Type:        models.TransactionTypeEarn,
			Amount:      s.startingBalance,
			Description: "Welcome grant",
		}
		if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
			return nil, fmt.Errorf("failed to record welcome grant: %w", err)
		}
	}

	uow.EventBus().Publish(events.AccountCreatedEvent{
		UserID:          userID,
		Username:        username,
		StartingBalance: s.startingBalance,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":          userID,
		"startingBalance": s.startingBalance,
	}).Info("Account created")

	return account, nil
}

// GetBalance returns the spendable and locked balances for a user
func (s *walletService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}

	return account.SpendableBalance, account.LockedBalance, nil
}

// GetTransactions returns a page of the user's ledger, most recent first,
// plus the cursor to resume from. A nil returned cursor means the history
// is exhausted.
func (s *walletService) GetTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *models.TransactionCursor) ([]*models.Transaction, *models.TransactionCursor, error) {
	if limit <= 0 {
		limit = DefaultTransactionPageSize
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txns, err := uow.TransactionRepository().GetByUser(ctx, userID, limit, cursor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	var next *models.TransactionCursor
	if len(txns) == limit {
		last := txns[len(txns)-1]
		next = &models.TransactionCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		}
	}

	return txns, next, nil
}
