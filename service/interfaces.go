package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mealswap/events"
	"mealswap/models"
)

// AccountRepository defines the interface for account data access.
// It is the sole mutator of the balance columns.
type AccountRepository interface {
	// GetByUserID retrieves an account by its user ID
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error)

	// Create creates a new account with the given starting balance
	Create(ctx context.Context, userID uuid.UUID, username string, startingBalance decimal.Decimal) (*models.Account, error)

	// DebitToEscrow moves amount from spendable to locked balance,
	// refusing (false, nil) if the debt floor would be breached
	DebitToEscrow(ctx context.Context, userID uuid.UUID, amount, maxDebt decimal.Decimal) (bool, error)

	// ReleaseEscrow removes amount from locked balance without touching spendable
	ReleaseEscrow(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)

	// RefundEscrow moves amount from locked back to spendable balance
	RefundEscrow(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)

	// Credit adds amount to the account's spendable balance
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error

	// IncrementSwapCount bumps the account's lifetime swap counter
	IncrementSwapCount(ctx context.Context, userID uuid.UUID) error
}

// ListingRepository defines the interface for listing data access
type ListingRepository interface {
	// GetByID retrieves a listing by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)

	// Create persists a new listing
	Create(ctx context.Context, listing *models.Listing) error

	// Transition flips a listing's status iff its current status matches
	// expected, returning false on an optimistic-concurrency loss
	Transition(ctx context.Context, id uuid.UUID, expected, next models.ListingStatus) (bool, error)

	// GetExpiredPending returns pending listings whose expiry window has passed
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Listing, error)
}

// DealRepository defines the interface for deal data access
type DealRepository interface {
	// GetByID retrieves a deal by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)

	// GetByIDForUpdate retrieves a deal and holds its row lock for the
	// rest of the transaction
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error)

	// Create persists a new deal
	Create(ctx context.Context, deal *models.Deal) error

	// Update persists a deal's status and completion timestamp
	Update(ctx context.Context, deal *models.Deal) error

	// GetActiveByUser returns accepted deals where the user is a party
	GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Deal, error)
}

// TransactionRepository defines the interface for the append-only ledger
type TransactionRepository interface {
	// Record appends a new ledger entry
	Record(ctx context.Context, txn *models.Transaction) error

	// GetByUser returns up to limit ledger entries for a user, most recent
	// first, resuming from the cursor when non-nil
	GetByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *models.TransactionCursor) ([]*models.Transaction, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork represents one transactional boundary: every repository
// obtained from it runs in the same database transaction, and events
// published to its bus are flushed only after a successful commit.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AccountRepository() AccountRepository
	ListingRepository() ListingRepository
	DealRepository() DealRepository
	TransactionRepository() TransactionRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// DealService defines the deal engine operations
type DealService interface {
	// AcceptOffer matches a buyer with a posted offer, creating a deal and
	// locking the offer price in escrow against the buyer
	AcceptOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Deal, error)

	// AcceptRequest matches a provider with a posted request, creating a
	// deal and locking the request price in escrow against the requester
	AcceptRequest(ctx context.Context, requestID, providerID uuid.UUID) (*models.Deal, error)

	// Complete releases escrow to the provider; buyer-only
	Complete(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error)

	// Cancel refunds escrow to the buyer; either party, pre-completion
	Cancel(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error)
}

// WalletService defines the read-side wallet operations and account seeding
type WalletService interface {
	// GetOrCreateAccount retrieves an account or seeds a new one with the
	// configured starting balance
	GetOrCreateAccount(ctx context.Context, userID uuid.UUID, username string) (*models.Account, error)

	// GetBalance returns the spendable and locked balances for a user
	GetBalance(ctx context.Context, userID uuid.UUID) (spendable, locked decimal.Decimal, err error)

	// GetTransactions returns a page of the user's ledger, most recent
	// first, plus the cursor to resume from (nil when exhausted)
	GetTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *models.TransactionCursor) ([]*models.Transaction, *models.TransactionCursor, error)
}
