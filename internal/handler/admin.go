package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/repository"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/service"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/util"
)

type AdminHandler struct {
	creditService  *service.CreditService
	accountRepo    repository.CreditAccountRepository
	txnRepo        repository.CreditTransactionRepository
	credentialRepo repository.CredentialRepository
	statsRepo      repository.StatsRepository
	guestCredits   *service.GuestQuotaTracker
	guestActions   *service.GuestQuotaTracker
}

func NewAdminHandler(
	creditService *service.CreditService,
	accountRepo repository.CreditAccountRepository,
	txnRepo repository.CreditTransactionRepository,
	credentialRepo repository.CredentialRepository,
	statsRepo repository.StatsRepository,
	guestCredits *service.GuestQuotaTracker,
	guestActions *service.GuestQuotaTracker,
) *AdminHandler {
	return &AdminHandler{
		creditService:  creditService,
		accountRepo:    accountRepo,
		txnRepo:        txnRepo,
		credentialRepo: credentialRepo,
		statsRepo:      statsRepo,
		guestCredits:   guestCredits,
		guestActions:   guestActions,
	}
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.statsRepo.GetLedgerOverview(ctx)
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to get ledger overview")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get overview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":       stats.AccountCount,
		"accountsAtZero": stats.AccountsAtZero,
		"availableTotal": stats.AvailableTotal,
		"maxTotal":       stats.MaxTotal,
		"transactions":   stats.TransactionTotal,
		"deducts":        stats.DeductTotal,
		"allocates":      stats.AllocateTotal,
		"resets":         stats.ResetTotal,
		"credentials":    stats.CredentialTotal,
		"timestamp":      time.Now().UnixMilli(),
	})
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := parsePagination(r)

	accounts, err := h.accountRepo.FindAll(ctx, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to list accounts")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []model.CreditAccount{}
	}

	total, err := h.accountRepo.Count(ctx)
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to count accounts")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list accounts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID := chi.URLParam(r, "identityId")

	account, status, err := h.creditService.AccountDetail(ctx, identityID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account_not_found", "no credit account for identity")
			return
		}
		log.Error().Err(err).Str("identityId", identityID).Msg("admin: failed to get account")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"status":  status,
	})
}

func (h *AdminHandler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID := chi.URLParam(r, "identityId")
	limit, offset := parsePagination(r)

	txns, err := h.txnRepo.FindByIdentityID(ctx, identityID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("identityId", identityID).Msg("admin: failed to list transactions")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list transactions")
		return
	}
	if txns == nil {
		txns = []model.CreditTransaction{}
	}

	total, err := h.txnRepo.CountByIdentityID(ctx, identityID)
	if err != nil {
		log.Error().Err(err).Str("identityId", identityID).Msg("admin: failed to count transactions")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type resetRequest struct {
	IdentityID string `json:"identityId"`
}

// Reset refills one account, or every account when the body names none.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
			return
		}
	}

	count, err := h.creditService.AdminReset(ctx, req.IdentityID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account_not_found", "no credit account for identity")
			return
		}
		log.Error().Err(err).Str("identityId", req.IdentityID).Msg("admin: failed to reset credits")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to reset credits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

type allocateRequest struct {
	IdentityID string `json:"identityId"`
	Amount     int    `json:"amount"`
}

func (h *AdminHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identityId is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "amount must be positive")
		return
	}

	status, err := h.creditService.AdminAllocate(ctx, req.IdentityID, req.Amount)
	if err != nil {
		log.Error().Err(err).Str("identityId", req.IdentityID).Msg("admin: failed to allocate credits")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to allocate credits")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// MintCredential issues a fresh API token for an identity. Only the hash is
// stored; the plaintext token appears in this response and nowhere else.
func (h *AdminHandler) MintCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID := chi.URLParam(r, "identityId")

	token, err := util.GenerateToken()
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to generate token")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate token")
		return
	}

	credential, err := h.credentialRepo.Create(ctx, model.CreateCredentialParams{
		IdentityID: identityID,
		TokenHash:  util.HashToken(token),
	})
	if err != nil {
		log.Error().Err(err).Str("identityId", identityID).Msg("admin: failed to store credential")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store credential")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"credentialId": credential.ID,
		"identityId":   credential.IdentityID,
		"token":        token,
	})
}

func (h *AdminHandler) GuestDetail(w http.ResponseWriter, r *http.Request) {
	guestID := chi.URLParam(r, "guestId")

	writeJSON(w, http.StatusOK, map[string]any{
		"guestId": guestID,
		"seen":    h.guestCredits.Seen(guestID) || h.guestActions.Seen(guestID),
		"credits": map[string]any{
			"remaining":    h.guestCredits.Remaining(guestID),
			"limit":        h.guestCredits.Limit(),
			"limitReached": h.guestCredits.IsLimitReached(guestID),
		},
		"actions": map[string]any{
			"remaining":    h.guestActions.Remaining(guestID),
			"limit":        h.guestActions.Limit(),
			"limitReached": h.guestActions.IsLimitReached(guestID),
		},
	})
}

// GuestReset clears a guest's in-process usage in both trackers.
func (h *AdminHandler) GuestReset(w http.ResponseWriter, r *http.Request) {
	guestID := chi.URLParam(r, "guestId")

	h.guestCredits.Reset(guestID)
	h.guestActions.Reset(guestID)
	log.Info().Str("guestId", guestID).Msg("admin: guest quota reset")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
