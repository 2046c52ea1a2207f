package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"mealswap/events"
	"mealswap/models"
)

const sweepBatchSize = 100

// ListingSweeper expires pending listings whose 24h window lapsed without
// an acceptance. The sweep is advisory housekeeping: it uses the same
// optimistic pending-precondition transition as the accept path, so a
// concurrent accept and sweep on one listing resolve to exactly one winner.
type ListingSweeper struct {
	uowFactory UnitOfWorkFactory
	interval   time.Duration
}

// NewListingSweeper creates a new listing sweeper
func NewListingSweeper(uowFactory UnitOfWorkFactory, interval time.Duration) *ListingSweeper {
	return &ListingSweeper{
		uowFactory: uowFactory,
		interval:   interval,
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (s *ListingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.WithField("interval", s.interval).Info("Listing sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Listing sweeper stopped")
			return
		case <-ticker.C:
			expired, err := s.SweepOnce(ctx)
			if err != nil {
				log.WithError(err).Error("Listing sweep failed")
				continue
			}
			if expired > 0 {
				log.WithField("expired", expired).Info("Expired stale listings")
			}
		}
	}
}

// SweepOnce expires one batch of stale pending listings and returns how
// many were flipped.
func (s *ListingSweeper) SweepOnce(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stale, err := uow.ListingRepository().GetExpiredPending(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, listing := range stale {
		transitioned, err := uow.ListingRepository().Transition(ctx, listing.ID, models.ListingStatusPending, models.ListingStatusExpired)
		if err != nil {
			return 0, err
		}
		if !transitioned {
			// Accepted between the read and the flip; the accept won.
			continue
		}
		expired++

		uow.EventBus().Publish(events.ListingExpiredEvent{
			ListingID: listing.ID,
			OwnerID:   listing.OwnerID,
		})
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return expired, nil
}
