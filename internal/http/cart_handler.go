package http

import (
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/rs/zerolog"
)

const emptyTotal = "$0.00"

type CartHandler struct{}

func NewCartHandler() *CartHandler {
	return &CartHandler{}
}

type CartResponseDTO struct {
	Cart *domain.Cart `json:"cart"`
}

type CartSummaryDTO struct {
	Total    string `json:"total"`
	HasItems bool   `json:"hasItems"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())
	respondJSON(w, r, http.StatusOK, CartResponseDTO{Cart: v.Cart.Cart()})
}

// GET /api/v1/cart/summary
func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	data, err := v.Gateway.FetchCart(r.Context(), gateway.CacheFirst)
	if err != nil && data == nil {
		respondGatewayError(w, r, err, gateway.MessageNetwork)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Ctx(r.Context()).Err(err).Msg("cart summary built from partial data")
	}

	summary := CartSummaryDTO{Total: emptyTotal}
	if c := gateway.FormatCart(data); c != nil {
		summary.HasItems = true
		if c.Total != "" {
			summary.Total = c.Total
		}
	}
	respondJSON(w, r, http.StatusOK, summary)
}

// POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	if err := v.Initializer.Refresh(r.Context()); err != nil && !v.Cart.HasCart() {
		respondGatewayError(w, r, err, gateway.MessageNetwork)
		return
	}
	respondJSON(w, r, http.StatusOK, CartResponseDTO{Cart: v.Cart.Cart()})
}
