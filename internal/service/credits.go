package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
)

// GuestCreditAction is the action type recorded when a guest spends a
// message credit through CheckAndConsume.
const GuestCreditAction = "message"

// CreditService is the surface API handlers call. Guest callers are routed
// to the in-process trackers, registered callers to the durable ledger, and
// every answer is shaped as a CreditStatus.
type CreditService struct {
	ledger       *CreditLedger
	guestCredits *GuestQuotaTracker
	guestActions *GuestQuotaTracker
	status       *StatusComputer
	now          func() time.Time
}

func NewCreditService(
	ledger *CreditLedger,
	guestCredits *GuestQuotaTracker,
	guestActions *GuestQuotaTracker,
	status *StatusComputer,
) *CreditService {
	return &CreditService{
		ledger:       ledger,
		guestCredits: guestCredits,
		guestActions: guestActions,
		status:       status,
		now:          time.Now,
	}
}

// CheckAndConsume spends one credit for the caller and returns the
// post-consumption status. Fails with ErrGuestLimitReached for exhausted
// guests and ErrInsufficientCredits for drained registered identities.
func (s *CreditService) CheckAndConsume(ctx context.Context, caller model.Caller) (*model.CreditStatus, error) {
	if caller.IsGuest {
		if !s.guestCredits.TrackAction(caller.IdentityID, GuestCreditAction) {
			return nil, ErrGuestLimitReached
		}
		return s.status.ForGuest(s.guestCredits.Remaining(caller.IdentityID), s.guestCredits.Limit()), nil
	}

	account, err := s.ledger.Deduct(ctx, caller.IdentityID, 1)
	if err != nil {
		return nil, err
	}
	return s.status.ForAccount(account, s.now().UTC()), nil
}

// GetStatus reports the caller's balance without consuming anything. A
// registered identity that has never consumed reads as a full, untouched
// balance rather than an error.
func (s *CreditService) GetStatus(ctx context.Context, caller model.Caller) (*model.CreditStatus, error) {
	if caller.IsGuest {
		return s.status.ForGuest(s.guestCredits.Remaining(caller.IdentityID), s.guestCredits.Limit()), nil
	}

	account, err := s.ledger.Get(ctx, caller.IdentityID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return s.status.ForUnseen(s.ledger.MaxCredits()), nil
		}
		return nil, err
	}
	return s.status.ForAccount(account, s.now().UTC()), nil
}

// AdminReset refills one identity, or every known identity when identityID
// is empty. Returns the number of accounts reset.
func (s *CreditService) AdminReset(ctx context.Context, identityID string) (int, error) {
	if identityID == "" {
		count, err := s.ledger.ResetAll(ctx)
		if err != nil {
			return 0, err
		}
		log.Info().Int("count", count).Msg("bulk credit reset completed")
		return count, nil
	}

	if _, err := s.ledger.ResetOne(ctx, identityID); err != nil {
		return 0, err
	}
	log.Info().Str("identityId", identityID).Msg("credit reset completed")
	return 1, nil
}

// AdminAllocate grants credits to an identity, clamped at the account
// ceiling, and returns the resulting status.
func (s *CreditService) AdminAllocate(ctx context.Context, identityID string, amount int) (*model.CreditStatus, error) {
	account, err := s.ledger.Allocate(ctx, identityID, amount)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("identityId", identityID).
		Int("amount", amount).
		Int("availableCredits", account.AvailableCredits).
		Msg("credits allocated")
	return s.status.ForAccount(account, s.now().UTC()), nil
}

// AccountDetail returns the authoritative account with its derived status
// for administrative views.
func (s *CreditService) AccountDetail(ctx context.Context, identityID string) (*model.CreditAccount, *model.CreditStatus, error) {
	account, err := s.ledger.Get(ctx, identityID)
	if err != nil {
		return nil, nil, err
	}
	return account, s.status.ForAccount(account, s.now().UTC()), nil
}

// TrackGuestAction records one pre-registration action for a guest and
// reports whether it was admitted plus the remaining allowance.
func (s *CreditService) TrackGuestAction(guestID, actionType string) (bool, int) {
	admitted := s.guestActions.TrackAction(guestID, actionType)
	return admitted, s.guestActions.Remaining(guestID)
}
