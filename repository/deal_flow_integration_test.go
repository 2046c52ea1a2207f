package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mealswap/events"
	"mealswap/models"
	"mealswap/repository/testutil"
	"mealswap/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dealFlowFixture struct {
	factory  service.UnitOfWorkFactory
	wallets  service.WalletService
	deals    service.DealService
	listings *ListingRepository
	accounts *AccountRepository
	ledger   *TransactionRepository
}

func setupDealFlow(t *testing.T) *dealFlowFixture {
	testDB := testutil.SetupTestDatabase(t)

	bus := events.NewBus()
	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	return &dealFlowFixture{
		factory:  factory,
		wallets:  service.NewWalletService(factory, decimal.NewFromInt(2)),
		deals:    service.NewDealService(factory, decimal.NewFromInt(2)),
		listings: NewListingRepository(testDB.DB),
		accounts: NewAccountRepository(testDB.DB),
		ledger:   NewTransactionRepository(testDB.DB),
	}
}

func (f *dealFlowFixture) newUser(t *testing.T, username string) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := f.wallets.GetOrCreateAccount(context.Background(), userID, username)
	require.NoError(t, err)
	return userID
}

func (f *dealFlowFixture) postOffer(t *testing.T, ownerID uuid.UUID, price decimal.Decimal) *models.Listing {
	t.Helper()
	listing := testutil.CreateTestListingWithPrice(ownerID, price)
	require.NoError(t, f.listings.Create(context.Background(), listing))
	return listing
}

// replayLedger sums a user's ledger entries, which must reproduce the
// spendable balance exactly.
func (f *dealFlowFixture) replayLedger(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	txns, err := f.ledger.GetByUser(context.Background(), userID, 1000, nil)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Amount)
	}
	return sum
}

func (f *dealFlowFixture) assertBalances(t *testing.T, userID uuid.UUID, spendable, locked decimal.Decimal) {
	t.Helper()
	account, err := f.accounts.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.SpendableBalance.Equal(spendable),
		"spendable: want %s, got %s", spendable, account.SpendableBalance)
	assert.True(t, account.LockedBalance.Equal(locked),
		"locked: want %s, got %s", locked, account.LockedBalance)
	assert.True(t, f.replayLedger(t, userID).Equal(spendable),
		"ledger replay diverged from spendable balance")
}

func TestDealFlow_OfferAcceptedAndCompleted(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")
	offer := f.postOffer(t, provider, decimal.NewFromFloat(0.7))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	require.NoError(t, err)

	// Acceptance moves the price into escrow and takes the listing off
	// the market
	f.assertBalances(t, buyer, decimal.NewFromFloat(1.3), decimal.NewFromFloat(0.7))
	f.assertBalances(t, provider, decimal.NewFromInt(2), decimal.Zero)

	listing, err := f.listings.GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusAccepted, listing.Status)

	completed, err := f.deals.Complete(ctx, deal.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	// Completion hands the escrowed tokens to the provider
	f.assertBalances(t, buyer, decimal.NewFromFloat(1.3), decimal.Zero)
	f.assertBalances(t, provider, decimal.NewFromFloat(2.7), decimal.Zero)

	listing, err = f.listings.GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusCompleted, listing.Status)

	// Both parties gained a swap
	for _, userID := range []uuid.UUID{provider, buyer} {
		account, err := f.accounts.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, account.SwapCount)
	}
}

func TestDealFlow_RequestAcceptedEscrowsOwner(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	requester := f.newUser(t, "requester")
	provider := f.newUser(t, "provider")

	request := testutil.CreateTestRequest(requester)
	request.TokenPrice = decimal.NewFromInt(1)
	require.NoError(t, f.listings.Create(ctx, request))

	deal, err := f.deals.AcceptRequest(ctx, request.ID, provider)
	require.NoError(t, err)
	assert.Equal(t, provider, deal.ProviderID)
	assert.Equal(t, requester, deal.BuyerID)

	// The requester pays, not the accepting provider
	f.assertBalances(t, requester, decimal.NewFromInt(1), decimal.NewFromInt(1))
	f.assertBalances(t, provider, decimal.NewFromInt(2), decimal.Zero)
}

func TestDealFlow_CancelRestoresBuyer(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")
	offer := f.postOffer(t, provider, decimal.NewFromFloat(1.5))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	require.NoError(t, err)

	cancelled, err := f.deals.Cancel(ctx, deal.ID, provider)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCancelled, cancelled.Status)

	// The refund restores the buyer exactly; nobody else moved
	f.assertBalances(t, buyer, decimal.NewFromInt(2), decimal.Zero)
	f.assertBalances(t, provider, decimal.NewFromInt(2), decimal.Zero)

	listing, err := f.listings.GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusCancelled, listing.Status)
}

func TestDealFlow_DoubleCompleteIsRejectedNoOp(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")
	offer := f.postOffer(t, provider, decimal.NewFromInt(1))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	require.NoError(t, err)

	_, err = f.deals.Complete(ctx, deal.ID, buyer)
	require.NoError(t, err)

	_, err = f.deals.Complete(ctx, deal.ID, buyer)
	assert.ErrorIs(t, err, service.ErrAlreadyTerminal)

	// The second attempt paid nobody twice
	f.assertBalances(t, provider, decimal.NewFromInt(3), decimal.Zero)
	f.assertBalances(t, buyer, decimal.NewFromInt(1), decimal.Zero)
}

func TestDealFlow_CancelAfterCompleteIsRejected(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")
	offer := f.postOffer(t, provider, decimal.NewFromInt(1))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	require.NoError(t, err)
	_, err = f.deals.Complete(ctx, deal.ID, buyer)
	require.NoError(t, err)

	_, err = f.deals.Cancel(ctx, deal.ID, provider)
	assert.ErrorIs(t, err, service.ErrAlreadyTerminal)

	// The completed payout stands
	f.assertBalances(t, provider, decimal.NewFromInt(3), decimal.Zero)
}

func TestDealFlow_InsufficientFundsLeavesNoTrace(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")

	// Drain the buyer to the floor: 2 spendable, -2 floor, so a 4.5-token
	// offer is out of reach
	offer := f.postOffer(t, provider, decimal.NewFromFloat(4.5))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	assert.ErrorIs(t, err, service.ErrInsufficientFunds)
	assert.Nil(t, deal)

	// Nothing changed: no deal, listing still pending, balances intact
	f.assertBalances(t, buyer, decimal.NewFromInt(2), decimal.Zero)

	listing, err := f.listings.GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPending, listing.Status)
}

func TestDealFlow_ConcurrentAcceptsSingleWinner(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	offer := f.postOffer(t, provider, decimal.NewFromInt(1))

	const contenders = 5
	buyers := make([]uuid.UUID, contenders)
	for i := range buyers {
		buyers[i] = f.newUser(t, "buyer")
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.deals.AcceptOffer(ctx, offer.ID, buyers[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t,
				errors.Is(err, service.ErrConflict) || errors.Is(err, service.ErrNotPending),
				"unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	// Exactly one buyer paid
	escrowed := 0
	for _, buyerID := range buyers {
		account, err := f.accounts.GetByUserID(ctx, buyerID)
		require.NoError(t, err)
		if account.LockedBalance.IsPositive() {
			escrowed++
		}
	}
	assert.Equal(t, 1, escrowed)
}

func TestDealFlow_ConcurrentCompleteAndCancel(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")
	offer := f.postOffer(t, provider, decimal.NewFromInt(1))

	deal, err := f.deals.AcceptOffer(ctx, offer.ID, buyer)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var completeErr, cancelErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, completeErr = f.deals.Complete(ctx, deal.ID, buyer)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.deals.Cancel(ctx, deal.ID, provider)
	}()
	wg.Wait()

	// The deal row lock lets exactly one of them through
	if completeErr == nil {
		assert.ErrorIs(t, cancelErr, service.ErrAlreadyTerminal)
		f.assertBalances(t, provider, decimal.NewFromInt(3), decimal.Zero)
		f.assertBalances(t, buyer, decimal.NewFromInt(1), decimal.Zero)
	} else {
		require.NoError(t, cancelErr)
		assert.ErrorIs(t, completeErr, service.ErrAlreadyTerminal)
		f.assertBalances(t, provider, decimal.NewFromInt(2), decimal.Zero)
		f.assertBalances(t, buyer, decimal.NewFromInt(2), decimal.Zero)
	}
}

func TestDealFlow_TotalTokensConserved(t *testing.T) {
	f := setupDealFlow(t)
	ctx := context.Background()

	provider := f.newUser(t, "provider")
	buyer := f.newUser(t, "buyer")

	// Run a complete and a cancel cycle; the community total never moves
	total := func() decimal.Decimal {
		sum := decimal.Zero
		for _, userID := range []uuid.UUID{provider, buyer} {
			account, err := f.accounts.GetByUserID(ctx, userID)
			require.NoError(t, err)
			sum = sum.Add(account.SpendableBalance).Add(account.LockedBalance)
		}
		return sum
	}

	initial := total()

	first := f.postOffer(t, provider, decimal.NewFromFloat(0.7))
	deal, err := f.deals.AcceptOffer(ctx, first.ID, buyer)
	require.NoError(t, err)
	assert.True(t, total().Equal(initial), "acceptance must not mint or burn tokens")

	_, err = f.deals.Complete(ctx, deal.ID, buyer)
	require.NoError(t, err)
	assert.True(t, total().Equal(initial), "completion must not mint or burn tokens")

	second := f.postOffer(t, provider, decimal.NewFromFloat(1.1))
	deal, err = f.deals.AcceptOffer(ctx, second.ID, buyer)
	require.NoError(t, err)
	_, err = f.deals.Cancel(ctx, deal.ID, buyer)
	require.NoError(t, err)
	assert.True(t, total().Equal(initial), "cancellation must not mint or burn tokens")
}
