package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"mealswap/events"
	"mealswap/models"
)

type dealService struct {
	uowFactory UnitOfWorkFactory
	maxDebt    decimal.Decimal
}

// NewDealService creates a new deal service. maxDebt is the debt floor
// expressed as a positive number of tokens.
func NewDealService(uowFactory UnitOfWorkFactory, maxDebt decimal.Decimal) DealService {
	return &dealService{
		uowFactory: uowFactory,
		maxDebt:    maxDebt,
	}
}

// isRetryableStorageError reports whether the error is a transient commit
// failure (serialization loss or deadlock, SQLSTATE class 40). These are
// safe to retry once: every operation re-validates listing and deal state
// inside its transaction, so a repeat is idempotent.
func isRetryableStorageError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// withRetry runs op, retrying exactly once on a transient storage failure.
// Any error that survives the retry and is not part of the domain taxonomy
// is surfaced as ErrStorage.
func withRetry(ctx context.Context, name string, op func() error) error {
	err := op()
	if err != nil && isRetryableStorageError(err) {
		log.WithFields(log.Fields{
			"operation": name,
			"error":     err,
		}).Warn("Transient storage failure, retrying once")
		err = op()
	}
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	if errors.Is(err, ErrDealNotEscrowed) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", name, ErrStorage, err)
}

// AcceptOffer matches a buyer with a posted offer. The deal creation, the
// listing transition and the escrow lock commit together or not at all.
func (s *dealService) AcceptOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Deal, error) {
	var deal *models.Deal
	err := withRetry(ctx, "accept offer", func() error {
		var err error
		deal, err = s.acceptListing(ctx, offerID, models.ListingKindOffer, buyerID)
		return err
	})
	return deal, err
}

// AcceptRequest matches a provider with a posted request. The listing owner
// is the buyer here: they asked for a meal and will pay, so escrow is locked
// against their account, not the caller's.
func (s *dealService) AcceptRequest(ctx context.Context, requestID, providerID uuid.UUID) (*models.Deal, error) {
	var deal *models.Deal
	err := withRetry(ctx, "accept request", func() error {
		var err error
		deal, err = s.acceptListing(ctx, requestID, models.ListingKindRequest, providerID)
		return err
	})
	return deal, err
}

func (s *dealService) acceptListing(ctx context.Context, listingID uuid.UUID, kind models.ListingKind, callerID uuid.UUID) (*models.Deal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	listing, err := uow.ListingRepository().GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listing == nil || listing.Kind != kind {
		return nil, fmt.Errorf("%s %s: %w", kind, listingID, ErrNotFound)
	}
	if listing.IsOwnedBy(callerID) {
		return nil, fmt.Errorf("%s %s: %w", kind, listingID, ErrSelfDeal)
	}
	if !listing.IsPending() {
		return nil, fmt.Errorf("%s %s is %s: %w", kind, listingID, listing.Status, ErrNotPending)
	}

	// The owner of an offer provides the meal; the owner of a request pays
	// for one.
	var providerID, buyerID uuid.UUID
	if kind == models.ListingKindOffer {
		providerID, buyerID = listing.OwnerID, callerID
	} else {
		providerID, buyerID = callerID, listing.OwnerID
	}

	// Validate affordability before any write so a failure leaves nothing
	// to roll back.
	ok, buyer, err := CanAfford(ctx, uow, buyerID, listing.TokenPrice, s.maxDebt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InsufficientFundsError{
			Available: buyer.SpendableBalance,
			Requested: listing.TokenPrice,
			MaxDebt:   s.maxDebt,
		}
	}

	// Re-check-and-set: the pending precondition is re-validated at write
	// time, so of two simultaneous accepts exactly one wins.
	transitioned, err := uow.ListingRepository().Transition(ctx, listingID, models.ListingStatusPending, models.ListingStatusAccepted)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, fmt.Errorf("%s %s: %w", kind, listingID, ErrConflict)
	}

	deal := &models.Deal{
		ProviderID:   providerID,
		BuyerID:      buyerID,
		TokenAmount:  listing.TokenPrice,
		EscrowLocked: true,
		Status:       models.DealStatusAccepted,
	}
	if kind == models.ListingKindOffer {
		deal.OfferID = &listingID
	} else {
		deal.RequestID = &listingID
	}

	if err := uow.DealRepository().Create(ctx, deal); err != nil {
		return nil, err
	}

	if err := LockEscrow(ctx, uow, buyerID, deal.TokenAmount, deal.ID, s.maxDebt); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.DealCreatedEvent{
		DealID:      deal.ID,
		ListingID:   listingID,
		ProviderID:  providerID,
		BuyerID:     buyerID,
		TokenAmount: deal.TokenAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dealID":  deal.ID,
		"listing": listingID,
		"buyer":   buyerID,
		"amount":  deal.TokenAmount,
	}).Info("Deal created")

	return deal, nil
}

// Complete releases the escrow to the provider and closes the deal. Only
// the buyer may confirm receipt: the party who pays attests completion.
func (s *dealService) Complete(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error) {
	var deal *models.Deal
	err := withRetry(ctx, "complete deal", func() error {
		var err error
		deal, err = s.complete(ctx, dealID, callerID)
		return err
	})
	return deal, err
}

func (s *dealService) complete(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// The row lock serializes concurrent Complete/Cancel attempts; the
	// loser re-reads a terminal deal and fails AlreadyTerminal with no
	// mutation.
	deal, err := uow.DealRepository().GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, fmt.Errorf("deal %s: %w", dealID, ErrNotFound)
	}
	if deal.IsTerminal() {
		return nil, fmt.Errorf("deal %s is %s: %w", dealID, deal.Status, ErrAlreadyTerminal)
	}
	if deal.Status != models.DealStatusAccepted {
		return nil, fmt.Errorf("deal %s is %s: %w", dealID, deal.Status, ErrNotAccepted)
	}
	if deal.BuyerID != callerID {
		return nil, fmt.Errorf("deal %s: only the buyer can complete: %w", dealID, ErrForbidden)
	}
	if !deal.EscrowLocked {
		return nil, fmt.Errorf("deal %s: %w", dealID, ErrDealNotEscrowed)
	}

	if err := ReleaseEscrowToProvider(ctx, uow, deal.BuyerID, deal.ProviderID, deal.TokenAmount, deal.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	deal.Status = models.DealStatusCompleted
	deal.CompletedAt = &now
	if err := uow.DealRepository().Update(ctx, deal); err != nil {
		return nil, err
	}

	transitioned, err := uow.ListingRepository().Transition(ctx, deal.ListingID(), models.ListingStatusAccepted, models.ListingStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, fmt.Errorf("listing %s: %w", deal.ListingID(), ErrConflict)
	}

	if err := uow.AccountRepository().IncrementSwapCount(ctx, deal.ProviderID); err != nil {
		return nil, err
	}
	if err := uow.AccountRepository().IncrementSwapCount(ctx, deal.BuyerID); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.DealCompletedEvent{
		DealID:      deal.ID,
		ProviderID:  deal.ProviderID,
		BuyerID:     deal.BuyerID,
		TokenAmount: deal.TokenAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dealID":   deal.ID,
		"provider": deal.ProviderID,
		"amount":   deal.TokenAmount,
	}).Info("Deal completed")

	return deal, nil
}

// Cancel refunds the escrow to the buyer and closes the deal. Either party
// may cancel before completion.
func (s *dealService) Cancel(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error) {
	var deal *models.Deal
	err := withRetry(ctx, "cancel deal", func() error {
		var err error
		deal, err = s.cancel(ctx, dealID, callerID)
		return err
	})
	return deal, err
}

func (s *dealService) cancel(ctx context.Context, dealID, callerID uuid.UUID) (*models.Deal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deal, err := uow.DealRepository().GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, fmt.Errorf("deal %s: %w", dealID, ErrNotFound)
	}
	if !deal.IsParticipant(callerID) {
		return nil, fmt.Errorf("deal %s: caller is not part of this deal: %w", dealID, ErrForbidden)
	}
	if deal.IsTerminal() {
		return nil, fmt.Errorf("deal %s is %s: %w", dealID, deal.Status, ErrAlreadyTerminal)
	}

	refunded := decimal.Zero
	if deal.EscrowLocked {
		if err := RefundEscrow(ctx, uow, deal.BuyerID, deal.TokenAmount, deal.ID); err != nil {
			return nil, err
		}
		refunded = deal.TokenAmount
		deal.EscrowLocked = false
	}

	deal.Status = models.DealStatusCancelled
	if err := uow.DealRepository().Update(ctx, deal); err != nil {
		return nil, err
	}

	transitioned, err := uow.ListingRepository().Transition(ctx, deal.ListingID(), models.ListingStatusAccepted, models.ListingStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, fmt.Errorf("listing %s: %w", deal.ListingID(), ErrConflict)
	}

	uow.EventBus().Publish(events.DealCancelledEvent{
		DealID:      deal.ID,
		CancelledBy: callerID,
		BuyerID:     deal.BuyerID,
		Refunded:    refunded,
	})

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dealID":      deal.ID,
		"cancelledBy": callerID,
		"refunded":    refunded,
	}).Info("Deal cancelled")

	return deal, nil
}
