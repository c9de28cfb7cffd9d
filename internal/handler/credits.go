package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/middleware"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/service"
)

// CreditsHandler serves the caller-facing credit endpoints. Identity has
// already been resolved by the time these run.
type CreditsHandler struct {
	creditService *service.CreditService
}

func NewCreditsHandler(creditService *service.CreditService) *CreditsHandler {
	return &CreditsHandler{creditService: creditService}
}

// Consume spends one credit for the caller and returns the remaining
// status. Quota-exhausted outcomes are distinguishable so clients can
// prompt guests to register and registered users to wait for the reset.
func (h *CreditsHandler) Consume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "caller not resolved")
		return
	}

	status, err := h.creditService.CheckAndConsume(ctx, caller)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGuestLimitReached):
			writeError(w, http.StatusTooManyRequests, "guest_limit_reached", "guest allowance exhausted, register to continue")
		case errors.Is(err, service.ErrInsufficientCredits):
			writeError(w, http.StatusTooManyRequests, "insufficient_credits", "credit balance exhausted, wait for the next reset")
		default:
			log.Error().Err(err).Str("identityId", caller.IdentityID).Msg("credits: consume failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to consume credit")
		}
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Status reports the caller's balance without consuming anything.
func (h *CreditsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "caller not resolved")
		return
	}

	status, err := h.creditService.GetStatus(ctx, caller)
	if err != nil {
		log.Error().Err(err).Str("identityId", caller.IdentityID).Msg("credits: status failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type guestActionRequest struct {
	ActionType string `json:"actionType"`
}

// GuestAction records one pre-registration action against the guest action
// allowance. Registered callers have no business here.
func (h *CreditsHandler) GuestAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "caller not resolved")
		return
	}
	if !caller.IsGuest {
		writeError(w, http.StatusBadRequest, "not_a_guest", "guest action tracking applies to guest callers only")
		return
	}

	var req guestActionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
			return
		}
	}
	if req.ActionType == "" {
		req.ActionType = "action"
	}

	allowed, remaining := h.creditService.TrackGuestAction(caller.IdentityID, req.ActionType)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "guest_limit_reached", "guest action allowance exhausted, register to continue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":   true,
		"remaining": remaining,
	})
}
