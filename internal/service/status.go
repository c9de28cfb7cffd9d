package service

import (
	"time"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
)

// StatusComputer derives the caller-facing credit status from ledger or
// tracker state. It holds only the configured reset interval and never
// mutates anything, so callers may query as often as they like.
type StatusComputer struct {
	resetInterval time.Duration
}

func NewStatusComputer(resetInterval time.Duration) *StatusComputer {
	return &StatusComputer{resetInterval: resetInterval}
}

// ForAccount reports a registered identity's status as of now.
func (c *StatusComputer) ForAccount(account *model.CreditAccount, now time.Time) *model.CreditStatus {
	nextReset := account.LastResetAt.Add(c.resetInterval)
	return &model.CreditStatus{
		AvailableCredits: account.AvailableCredits,
		MaxCredits:       account.MaxCredits,
		IsGuest:          false,
		CanReset:         !now.Before(nextReset),
		NextResetTime:    &nextReset,
	}
}

// ForGuest reports a guest's status. Guests never refill, so there is no
// reset to wait for.
func (c *StatusComputer) ForGuest(remaining, limit int) *model.CreditStatus {
	return &model.CreditStatus{
		AvailableCredits: remaining,
		MaxCredits:       limit,
		IsGuest:          true,
	}
}

// ForUnseen reports the status of a registered identity whose account does
// not exist yet. The balance reads full; reset times appear once the account
// is created on first consumption.
func (c *StatusComputer) ForUnseen(maxCredits int) *model.CreditStatus {
	return &model.CreditStatus{
		AvailableCredits: maxCredits,
		MaxCredits:       maxCredits,
	}
}
