package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"mealswap/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange  EventType = "balance_change"
	EventTypeAccountCreated EventType = "account_created"
	EventTypeDealCreated    EventType = "deal_created"
	EventTypeDealCompleted  EventType = "deal_completed"
	EventTypeDealCancelled  EventType = "deal_cancelled"
	EventTypeListingExpired EventType = "listing_expired"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a spendable-balance change that occurred
type BalanceChangeEvent struct {
	UserID          uuid.UUID
	OldBalance      decimal.Decimal
	NewBalance      decimal.Decimal
	TransactionType models.TransactionType
	ChangeAmount    decimal.Decimal
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents a new account seeded with its starting balance
type AccountCreatedEvent struct {
	UserID          uuid.UUID
	Username        string
	StartingBalance decimal.Decimal
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// DealCreatedEvent represents a listing acceptance that produced a deal
type DealCreatedEvent struct {
	DealID      uuid.UUID
	ListingID   uuid.UUID
	ProviderID  uuid.UUID
	BuyerID     uuid.UUID
	TokenAmount decimal.Decimal
}

func (e DealCreatedEvent) Type() EventType {
	return EventTypeDealCreated
}

// DealCompletedEvent represents escrow released to the provider
type DealCompletedEvent struct {
	DealID      uuid.UUID
	ProviderID  uuid.UUID
	BuyerID     uuid.UUID
	TokenAmount decimal.Decimal
}

func (e DealCompletedEvent) Type() EventType {
	return EventTypeDealCompleted
}

// DealCancelledEvent represents a deal cancelled and its escrow refunded
type DealCancelledEvent struct {
	DealID      uuid.UUID
	CancelledBy uuid.UUID
	BuyerID     uuid.UUID
	Refunded    decimal.Decimal
}

func (e DealCancelledEvent) Type() EventType {
	return EventTypeDealCancelled
}

// ListingExpiredEvent represents a pending listing swept past its expiry window
type ListingExpiredEvent struct {
	ListingID uuid.UUID
	OwnerID   uuid.UUID
}

func (e ListingExpiredEvent) Type() EventType {
	return EventTypeListingExpired
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make([]Handler, 0)
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus")

	// Use background context for event emission to avoid issues with
	// transaction context expiration. Events are processed independently
	// of the transaction lifecycle.
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
