package service

import (
	"context"
	"testing"
	"time"

	"mealswap/events"
	"mealswap/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func staleListing(ownerID uuid.UUID) *models.Listing {
	return &models.Listing{
		ID:         uuid.New(),
		Kind:       models.ListingKindOffer,
		OwnerID:    ownerID,
		Location:   "South Dining Hall",
		MealType:   models.MealTypeDinner,
		MealDate:   time.Now().Add(-2 * time.Hour),
		TokenPrice: decimal.NewFromInt(1),
		Status:     models.ListingStatusPending,
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
}

func TestListingSweeper_SweepOnce_ExpiresStaleListings(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockListingRepo := new(MockListingRepository)
	mockBus := new(MockEventPublisher)

	mockUoW.SetRepositories(nil, mockListingRepo, nil, nil, mockBus)

	sweeper := NewListingSweeper(mockFactory, time.Minute)

	first := staleListing(uuid.New())
	second := staleListing(uuid.New())

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockListingRepo.On("GetExpiredPending", ctx, mock.AnythingOfType("time.Time"), sweepBatchSize).Return([]*models.Listing{first, second}, nil)
	mockListingRepo.On("Transition", ctx, first.ID, models.ListingStatusPending, models.ListingStatusExpired).Return(true, nil)
	mockListingRepo.On("Transition", ctx, second.ID, models.ListingStatusPending, models.ListingStatusExpired).Return(true, nil)

	mockBus.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		_, ok := e.(events.ListingExpiredEvent)
		return ok
	})).Return()

	expired, err := sweeper.SweepOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, expired)
	mockUoW.AssertExpectations(t)
	mockListingRepo.AssertExpectations(t)
	mockBus.AssertNumberOfCalls(t, "Publish", 2)
}

func TestListingSweeper_SweepOnce_SkipsConcurrentlyAccepted(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockListingRepo := new(MockListingRepository)
	mockBus := new(MockEventPublisher)

	mockUoW.SetRepositories(nil, mockListingRepo, nil, nil, mockBus)

	sweeper := NewListingSweeper(mockFactory, time.Minute)

	expiring := staleListing(uuid.New())
	racing := staleListing(uuid.New())

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockListingRepo.On("GetExpiredPending", ctx, mock.AnythingOfType("time.Time"), sweepBatchSize).Return([]*models.Listing{expiring, racing}, nil)
	mockListingRepo.On("Transition", ctx, expiring.ID, models.ListingStatusPending, models.ListingStatusExpired).Return(true, nil)
	// An accept slipped in between the read and the flip; the accept wins
	mockListingRepo.On("Transition", ctx, racing.ID, models.ListingStatusPending, models.ListingStatusExpired).Return(false, nil)

	mockBus.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		ev, ok := e.(events.ListingExpiredEvent)
		return ok && ev.ListingID == expiring.ID
	})).Return()

	expired, err := sweeper.SweepOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, expired)
	mockBus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestListingSweeper_SweepOnce_NothingToExpire(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockListingRepo := new(MockListingRepository)
	mockBus := new(MockEventPublisher)

	mockUoW.SetRepositories(nil, mockListingRepo, nil, nil, mockBus)

	sweeper := NewListingSweeper(mockFactory, time.Minute)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockListingRepo.On("GetExpiredPending", ctx, mock.AnythingOfType("time.Time"), sweepBatchSize).Return([]*models.Listing{}, nil)

	expired, err := sweeper.SweepOnce(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 0, expired)
	mockBus.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestListingSweeper_Run_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mockFactory := new(MockUnitOfWorkFactory)
	sweeper := NewListingSweeper(mockFactory, time.Hour)

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
