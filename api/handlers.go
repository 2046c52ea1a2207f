package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mealswap/models"
	"mealswap/service"
)

// callerHeader carries the caller's user ID. The community deployment sits
// behind a gateway that authenticates members and injects this header.
const callerHeader = "X-User-ID"

const usernameHeader = "X-Username"

// Handler holds the services the HTTP surface delegates to
type Handler struct {
	deals   service.DealService
	wallets service.WalletService
}

// NewHandler creates a new handler
func NewHandler(deals service.DealService, wallets service.WalletService) *Handler {
	return &Handler{
		deals:   deals,
		wallets: wallets,
	}
}

// AcceptOffer matches the caller as buyer with a posted offer.
// POST /api/offers/{id}/accept
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "accept_offer", h.deals.AcceptOffer)
}

// AcceptRequest matches the caller as provider with a posted request.
// POST /api/requests/{id}/accept
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "accept_request", h.deals.AcceptRequest)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request, operation string,
	op func(ctx context.Context, listingID, callerID uuid.UUID) (*models.Deal, error)) {

	listingID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	callerID, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	// First touch seeds the caller's wallet with the starting balance
	if _, err := h.wallets.GetOrCreateAccount(r.Context(), callerID, r.Header.Get(usernameHeader)); err != nil {
		h.writeServiceError(w, operation, err)
		return
	}

	deal, err := op(r.Context(), listingID, callerID)
	if err != nil {
		h.writeServiceError(w, operation, err)
		return
	}

	dealOperations.WithLabelValues(operation, "ok").Inc()
	writeJSON(w, http.StatusCreated, toDealDTO(deal))
}

// Complete releases the deal's escrow to the provider.
// POST /api/deals/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	callerID, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	deal, err := h.deals.Complete(r.Context(), dealID, callerID)
	if err != nil {
		h.writeServiceError(w, "complete", err)
		return
	}

	dealOperations.WithLabelValues("complete", "ok").Inc()
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

// Cancel refunds the deal's escrow to the buyer.
// POST /api/deals/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	callerID, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	deal, err := h.deals.Cancel(r.Context(), dealID, callerID)
	if err != nil {
		h.writeServiceError(w, "cancel", err)
		return
	}

	dealOperations.WithLabelValues("cancel", "ok").Inc()
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

// GetWallet returns the user's spendable and locked balances.
// GET /api/wallet/{userID}
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "userID")
	if !ok {
		return
	}

	spendable, locked, err := h.wallets.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get_wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, WalletDTO{
		UserID:           userID.String(),
		SpendableBalance: spendable,
		LockedBalance:    locked,
		TotalHoldings:    spendable.Add(locked),
	})
}

// GetTransactions returns a page of the user's ledger, most recent first.
// GET /api/wallet/{userID}/transactions?limit=&cursor_at=&cursor_id=
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "userID")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, next, err := h.wallets.GetTransactions(r.Context(), userID, limit, cursor)
	if err != nil {
		h.writeServiceError(w, "get_transactions", err)
		return
	}

	page := TransactionPageDTO{
		Transactions: make([]TransactionDTO, len(txns)),
	}
	for i, txn := range txns {
		page.Transactions[i] = toTransactionDTO(txn)
	}
	if next != nil {
		page.NextCursor = &CursorDTO{
			CreatedAt: next.CreatedAt.Format(time.RFC3339Nano),
			ID:        next.ID,
		}
	}

	writeJSON(w, http.StatusOK, page)
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseCursor(r *http.Request) (*models.TransactionCursor, error) {
	rawAt := r.URL.Query().Get("cursor_at")
	rawID := r.URL.Query().Get("cursor_id")
	if rawAt == "" && rawID == "" {
		return nil, nil
	}

	at, err := time.Parse(time.RFC3339Nano, rawAt)
	if err != nil {
		return nil, errors.New("invalid cursor_at, expected RFC3339")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, errors.New("invalid cursor_id")
	}

	return &models.TransactionCursor{CreatedAt: at, ID: id}, nil
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func callerFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(callerHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+callerHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the service error taxonomy to HTTP statuses with
// stable user-facing messages. Raw internals never cross this boundary.
func (h *Handler) writeServiceError(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	outcome := "error"

	switch {
	case errors.Is(err, service.ErrNotFound):
		status, message, outcome = http.StatusNotFound, "not found", "not_found"
	case errors.Is(err, service.ErrSelfDeal):
		status, message, outcome = http.StatusForbidden, "cannot accept your own listing", "self_deal"
	case errors.Is(err, service.ErrForbidden):
		status, message, outcome = http.StatusForbidden, "not allowed for this deal", "forbidden"
	case errors.Is(err, service.ErrNotPending):
		status, message, outcome = http.StatusConflict, "listing is no longer available", "not_pending"
	case errors.Is(err, service.ErrNotAccepted):
		status, message, outcome = http.StatusConflict, "deal is not in a completable state", "not_accepted"
	case errors.Is(err, service.ErrAlreadyTerminal):
		status, message, outcome = http.StatusConflict, "deal is already completed or cancelled", "already_terminal"
	case errors.Is(err, service.ErrConflict):
		status, message, outcome = http.StatusConflict, "listing was just taken, try another", "conflict"
	case errors.Is(err, service.ErrInsufficientFunds):
		status, outcome = http.StatusUnprocessableEntity, "insufficient_funds"
		message = insufficientFundsMessage(err)
	default:
		log.WithFields(log.Fields{
			"operation": operation,
			"error":     err,
		}).Error("Operation failed")
	}

	dealOperations.WithLabelValues(operation, outcome).Inc()
	writeError(w, status, message)
}

func insufficientFundsMessage(err error) string {
	var ife *service.InsufficientFundsError
	if errors.As(err, &ife) {
		return "insufficient funds: balance " + ife.Available.StringFixed(2) +
			", price " + ife.Requested.StringFixed(2) +
			", debt floor -" + ife.MaxDebt.StringFixed(2)
	}
	return "insufficient funds"
}
