package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mealswap/events"
)

// dealOperations counts deal engine calls by operation and outcome. The
// outcome label is the taxonomy error name, or "ok".
var dealOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mealswap",
	Subsystem: "deals",
	Name:      "operations_total",
	Help:      "Deal engine operations by operation and outcome.",
}, []string{"operation", "outcome"})

// escrowVolume tracks tokens moving through escrow. Locked on acceptance,
// released to the provider on completion, refunded on cancellation.
var escrowVolume = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mealswap",
	Subsystem: "deals",
	Name:      "escrow_tokens_total",
	Help:      "Tokens moved through escrow, by direction (locked, released, refunded).",
}, []string{"direction"})

var accountsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mealswap",
	Subsystem: "wallet",
	Name:      "accounts_created_total",
	Help:      "Accounts created and seeded with the starting balance.",
})

var listingsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mealswap",
	Subsystem: "listings",
	Name:      "expired_total",
	Help:      "Pending listings expired by the sweeper.",
})

// RegisterMetrics subscribes the Prometheus collectors to the event bus.
// Events only flow after a successful commit, so the counters never count
// rolled-back work.
func RegisterMetrics(bus *events.Bus) {
	bus.Subscribe(events.EventTypeAccountCreated, func(ctx context.Context, e events.Event) {
		accountsCreated.Inc()
	})

	bus.Subscribe(events.EventTypeListingExpired, func(ctx context.Context, e events.Event) {
		listingsExpired.Inc()
	})

	bus.Subscribe(events.EventTypeDealCreated, func(ctx context.Context, e events.Event) {
		if ev, ok := e.(events.DealCreatedEvent); ok {
			amount, _ := ev.TokenAmount.Float64()
			escrowVolume.WithLabelValues("locked").Add(amount)
		}
	})

	bus.Subscribe(events.EventTypeDealCompleted, func(ctx context.Context, e events.Event) {
		if ev, ok := e.(events.DealCompletedEvent); ok {
			amount, _ := ev.TokenAmount.Float64()
			escrowVolume.WithLabelValues("released").Add(amount)
		}
	})

	bus.Subscribe(events.EventTypeDealCancelled, func(ctx context.Context, e events.Event) {
		if ev, ok := e.(events.DealCancelledEvent); ok {
			amount, _ := ev.Refunded.Float64()
			escrowVolume.WithLabelValues("refunded").Add(amount)
		}
	})
}
