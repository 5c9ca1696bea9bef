package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/rs/zerolog"
)

type SessionEnder interface {
	End(ctx context.Context, id string, browser session.CookieStore) session.Redirect
}

type AccountHandler struct {
	sessions SessionEnder
}

func NewAccountHandler(sessions SessionEnder) *AccountHandler {
	return &AccountHandler{sessions: sessions}
}

type LoginRequestDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	Status   string `json:"status"`
	Redirect string `json:"redirect"`
}

type LoginRequiredDTO struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Login string `json:"login"`
}

// POST /api/v1/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())
	logger := zerolog.Ctx(r.Context())

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	status, err := v.Gateway.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		logger.Warn().Ctx(r.Context()).Err(err).Str("code", gateway.ErrorCode(err)).Msg("login failed")
		var netErr *gateway.NetworkError
		switch {
		case errors.As(err, &netErr):
			respondError(w, r, http.StatusBadGateway, gateway.CodeNetwork, gateway.MessageNetwork)
		case errors.Is(err, gateway.ErrLoginRejected):
			respondError(w, r, http.StatusUnauthorized, "login_rejected", gateway.MessageLoginFailed)
		default:
			respondError(w, r, http.StatusUnauthorized, gateway.ErrorCode(err), gateway.FriendlyMessage(err, gateway.MessageLoginFailed))
		}
		return
	}

	// The signed-in cart and customer differ from the anonymous ones.
	if err := v.Gateway.ResetStore(r.Context()); err != nil {
		logger.Warn().Ctx(r.Context()).Err(err).Msg("reset query cache after login")
	}
	if err := v.Initializer.Refresh(r.Context()); err != nil {
		logger.Warn().Ctx(r.Context()).Err(err).Msg("refresh cart after login")
	}

	redirect, err := session.TakeReturnURL(r.Context(), v.State)
	if err != nil {
		logger.Warn().Ctx(r.Context()).Err(err).Msg("read return url")
	}
	respondJSON(w, r, http.StatusOK, LoginResponseDTO{Status: status, Redirect: redirect})
}

// GET /api/v1/account?route=/account/orders
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	customer, err := v.Gateway.CurrentUser(r.Context())
	if err == nil && customer != nil {
		respondJSON(w, r, http.StatusOK, customer)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Ctx(r.Context()).Err(err).Msg("current user lookup failed")
	}

	login, errRemember := session.RememberReturnURL(r.Context(), v.State, r.URL.Query().Get("route"))
	if errRemember != nil {
		zerolog.Ctx(r.Context()).Warn().Ctx(r.Context()).Err(errRemember).Msg("remember return url")
	}
	respondJSON(w, r, http.StatusUnauthorized, LoginRequiredDTO{
		Error: "Please sign in to view your account.",
		Code:  "unauthenticated",
		Login: login,
	})
}

// POST /api/v1/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r.Context())

	redirect := h.sessions.End(r.Context(), v.ID, session.NewResponseCookies(w, r))

	w.Header().Set("Cache-Control", "no-store")
	if redirect.Replace {
		w.Header().Set("X-Navigation", "replace")
	}
	http.Redirect(w, r, redirect.Location, http.StatusSeeOther)
}
