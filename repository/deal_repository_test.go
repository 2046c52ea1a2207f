package repository

import (
	"context"
	"testing"
	"time"

	"mealswap/models"
	"mealswap/repository/testutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createListing(t *testing.T, repo *ListingRepository, ownerID uuid.UUID) *models.Listing {
	t.Helper()
	listing := testutil.CreateTestListing(ownerID)
	require.NoError(t, repo.Create(context.Background(), listing))
	return listing
}

func TestDealRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDealRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	listingRepo := NewListingRepository(testDB.DB)
	ctx := context.Background()

	providerID := createAccount(t, accountRepo, "provider")
	buyerID := createAccount(t, accountRepo, "buyer")

	t.Run("create assigns id", func(t *testing.T) {
		offer := createListing(t, listingRepo, providerID)
		deal := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromFloat(0.7))

		err := repo.Create(ctx, deal)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, deal.ID)
		assert.False(t, deal.CreatedAt.IsZero())
	})

	t.Run("get roundtrips fields", func(t *testing.T) {
		offer := createListing(t, listingRepo, providerID)
		deal := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromFloat(1.5))
		require.NoError(t, repo.Create(ctx, deal))

		got, err := repo.GetByID(ctx, deal.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.OfferID)
		assert.Equal(t, offer.ID, *got.OfferID)
		assert.Nil(t, got.RequestID)
		assert.Equal(t, providerID, got.ProviderID)
		assert.Equal(t, buyerID, got.BuyerID)
		assert.True(t, got.TokenAmount.Equal(decimal.NewFromFloat(1.5)))
		assert.True(t, got.EscrowLocked)
		assert.Equal(t, models.DealStatusAccepted, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("get unknown deal returns nil", func(t *testing.T) {
		got, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("one deal per listing", func(t *testing.T) {
		offer := createListing(t, listingRepo, providerID)
		first := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromInt(1))
		require.NoError(t, repo.Create(ctx, first))

		second := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromInt(1))
		assert.Error(t, repo.Create(ctx, second))
	})

	t.Run("self-deal violates check constraint", func(t *testing.T) {
		offer := createListing(t, listingRepo, providerID)
		deal := testutil.CreateTestDeal(offer.ID, providerID, providerID, decimal.NewFromInt(1))
		assert.Error(t, repo.Create(ctx, deal))
	})
}

func TestDealRepository_Update(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDealRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	listingRepo := NewListingRepository(testDB.DB)
	ctx := context.Background()

	providerID := createAccount(t, accountRepo, "provider")
	buyerID := createAccount(t, accountRepo, "buyer")

	t.Run("persists completion", func(t *testing.T) {
		offer := createListing(t, listingRepo, providerID)
		deal := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromInt(1))
		require.NoError(t, repo.Create(ctx, deal))

		now := time.Now()
		deal.Status = models.DealStatusCompleted
		deal.EscrowLocked = false
		deal.CompletedAt = &now
		require.NoError(t, repo.Update(ctx, deal))

		got, err := repo.GetByID(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DealStatusCompleted, got.Status)
		assert.False(t, got.EscrowLocked)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("unknown deal fails", func(t *testing.T) {
		deal := testutil.CreateTestDeal(uuid.New(), providerID, buyerID, decimal.NewFromInt(1))
		deal.ID = uuid.New()
		assert.Error(t, repo.Update(ctx, deal))
	})
}

func TestDealRepository_GetActiveByUser(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDealRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	listingRepo := NewListingRepository(testDB.DB)
	ctx := context.Background()

	providerID := createAccount(t, accountRepo, "provider")
	buyerID := createAccount(t, accountRepo, "buyer")
	otherID := createAccount(t, accountRepo, "bystander")

	active := testutil.CreateTestDeal(createListing(t, listingRepo, providerID).ID, providerID, buyerID, decimal.NewFromInt(1))
	require.NoError(t, repo.Create(ctx, active))

	cancelled := testutil.CreateTestDeal(createListing(t, listingRepo, providerID).ID, providerID, buyerID, decimal.NewFromInt(1))
	require.NoError(t, repo.Create(ctx, cancelled))
	cancelled.Status = models.DealStatusCancelled
	cancelled.EscrowLocked = false
	require.NoError(t, repo.Update(ctx, cancelled))

	t.Run("both parties see the active deal", func(t *testing.T) {
		for _, userID := range []uuid.UUID{providerID, buyerID} {
			deals, err := repo.GetActiveByUser(ctx, userID)
			require.NoError(t, err)
			require.Len(t, deals, 1)
			assert.Equal(t, active.ID, deals[0].ID)
		}
	})

	t.Run("non-participant sees nothing", func(t *testing.T) {
		deals, err := repo.GetActiveByUser(ctx, otherID)
		require.NoError(t, err)
		assert.Empty(t, deals)
	})
}

func TestDealRepository_GetByIDForUpdate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDealRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	listingRepo := NewListingRepository(testDB.DB)
	ctx := context.Background()

	providerID := createAccount(t, accountRepo, "provider")
	buyerID := createAccount(t, accountRepo, "buyer")

	offer := createListing(t, listingRepo, providerID)
	deal := testutil.CreateTestDeal(offer.ID, providerID, buyerID, decimal.NewFromInt(1))
	require.NoError(t, repo.Create(ctx, deal))

	// Inside a transaction the row lock is held until commit
	err := testDB.DB.WithTransaction(ctx, func(tx pgx.Tx) error {
		txRepo := newDealRepositoryWithTx(tx)
		got, err := txRepo.GetByIDForUpdate(ctx, deal.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, deal.ID, got.ID)
		return nil
	})
	require.NoError(t, err)

	missing, err := repo.GetByIDForUpdate(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
