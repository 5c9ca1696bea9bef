package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Ctx(r.Context()).Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondGatewayError maps a failed gateway call to a response that carries
// only the shopper-safe message.
func respondGatewayError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	zerolog.Ctx(r.Context()).Error().Ctx(r.Context()).Err(err).Msg("gateway call failed")

	var netErr *gateway.NetworkError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", gateway.MessageNetwork)
	case errors.As(err, &netErr):
		respondError(w, r, http.StatusBadGateway, gateway.CodeNetwork, gateway.MessageNetwork)
	default:
		respondError(w, r, http.StatusBadGateway, gateway.ErrorCode(err), gateway.FriendlyMessage(err, fallback))
	}
}
