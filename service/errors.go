package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the deal engine and balance manager. Callers match
// with errors.Is; the API layer maps each to a stable user-facing message
// and status code, so raw internals never cross the external interface.
var (
	// ErrNotFound is returned when a referenced listing or deal does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSelfDeal is returned when a user tries to accept their own listing.
	ErrSelfDeal = errors.New("cannot accept your own listing")

	// ErrNotPending is returned when accepting a listing that has already
	// left the pending state.
	ErrNotPending = errors.New("listing is not pending")

	// ErrNotAccepted is returned when completing a deal that is not in the
	// accepted state.
	ErrNotAccepted = errors.New("deal is not in accepted state")

	// ErrAlreadyTerminal is returned when mutating a completed or cancelled
	// deal. Repeat Complete/Cancel calls fail with this and mutate nothing.
	ErrAlreadyTerminal = errors.New("deal is already completed or cancelled")

	// ErrInsufficientFunds is returned when an escrow lock would push the
	// buyer's spendable balance below the debt floor.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDealNotEscrowed indicates escrow state diverged from the deal
	// state. It should never surface to a well-behaved caller; treat it as
	// a fatal consistency error.
	ErrDealNotEscrowed = errors.New("deal escrow not locked")

	// ErrForbidden is returned when the caller lacks the required role for
	// the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when an optimistic listing transition loses
	// to a concurrent writer. Report "already taken" to the user; do not
	// retry blindly.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrStorage wraps an underlying transaction failure after the bounded
	// retry has been exhausted.
	ErrStorage = errors.New("storage failure")
)

// InsufficientFundsError carries the balance detail behind an
// ErrInsufficientFunds failure.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
	MaxDebt   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %s spendable, need %s (maximum debt is -%s tokens)",
		e.Available, e.Requested, e.MaxDebt)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsClientError reports whether the error is due to invalid caller input
// or state, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSelfDeal) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrNotAccepted) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict)
}
