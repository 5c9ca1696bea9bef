package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/rs/zerolog"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 100
)

type AttemptLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.CheckoutAttempt, error)
}

type CheckoutHandler struct {
	attempts AttemptLister
}

// NewCheckoutHandler builds the checkout endpoints. attempts may be nil when
// no ledger is configured.
func NewCheckoutHandler(attempts AttemptLister) *CheckoutHandler {
	return &CheckoutHandler{attempts: attempts}
}

type AttemptsResponseDTO struct {
	Attempts []domain.CheckoutAttempt `json:"attempts"`
}

// GET /api/v1/checkout
//
// The cart is refetched first so the form is never offered for a cart the
// gateway has already emptied.
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())
	if err := v.Initializer.Reconcile(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Ctx(r.Context()).Err(err).Msg("refetch cart for checkout view")
	}
	respondJSON(w, r, http.StatusOK, v.Checkout.View())
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	var form checkout.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	vm, err := v.Checkout.Submit(r.Context(), form)
	if err != nil {
		var invalid *checkout.ValidationError
		switch {
		case errors.As(err, &invalid):
			respondJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
				Error:  "Please correct the highlighted fields.",
				Code:   "invalid_form",
				Fields: invalid.Fields,
			})
		case errors.Is(err, checkout.ErrEmptyCart):
			respondError(w, r, http.StatusUnprocessableEntity, "empty_cart", "Your cart is empty.")
		case errors.Is(err, checkout.ErrSubmissionInFlight):
			respondError(w, r, http.StatusConflict, "submission_in_flight", "Your order is already being placed.")
		case errors.Is(err, checkout.ErrClosed):
			respondError(w, r, http.StatusConflict, "session_closed", "Your session has ended. Please reload the page.")
		default:
			zerolog.Ctx(r.Context()).Error().Ctx(r.Context()).Err(err).Msg("checkout submit")
			respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, r, http.StatusOK, vm)
}

// GET /api/v1/checkout/attempts
func (h *CheckoutHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	limit := defaultAttemptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAttemptLimit {
			respondError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	if h.attempts == nil {
		respondJSON(w, r, http.StatusOK, AttemptsResponseDTO{Attempts: []domain.CheckoutAttempt{}})
		return
	}

	attempts, err := h.attempts.ListBySession(r.Context(), v.ID, limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Ctx(r.Context()).Err(err).Msg("list checkout attempts")
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if attempts == nil {
		attempts = []domain.CheckoutAttempt{}
	}
	respondJSON(w, r, http.StatusOK, AttemptsResponseDTO{Attempts: attempts})
}
