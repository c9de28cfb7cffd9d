package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type guestUsage struct {
	ActionType string
	At         time.Time
}

// GuestQuotaTracker bounds unauthenticated usage with in-process counters.
// Nothing survives a restart and guests never refill on a schedule; the
// allowance exists only to cap what a caller can do before registering.
// The same type backs both the guest action tracker and the guest message
// credit tracker, distinguished by label.
type GuestQuotaTracker struct {
	label string
	limit int
	now   func() time.Time

	mu    sync.RWMutex
	usage map[string][]guestUsage
}

func NewGuestQuotaTracker(label string, limit int) *GuestQuotaTracker {
	return &GuestQuotaTracker{
		label: label,
		limit: limit,
		now:   time.Now,
		usage: make(map[string][]guestUsage),
	}
}

// TrackAction records one action for the guest and reports whether it was
// admitted. At the limit nothing is recorded, so the usage history never
// grows past the allowance.
func (t *GuestQuotaTracker) TrackAction(guestID, actionType string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.usage[guestID]) >= t.limit {
		log.Debug().
			Str("tracker", t.label).
			Str("guestId", guestID).
			Msg("guest limit reached")
		return false
	}
	t.usage[guestID] = append(t.usage[guestID], guestUsage{
		ActionType: actionType,
		At:         t.now().UTC(),
	})
	return true
}

// Remaining reports how much allowance the guest has left, the full limit
// for guests never seen.
func (t *GuestQuotaTracker) Remaining(guestID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	remaining := t.limit - len(t.usage[guestID])
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *GuestQuotaTracker) IsLimitReached(guestID string) bool {
	return t.Remaining(guestID) == 0
}

// Reset clears the guest's usage history. Administrative and test use only;
// no schedule ever calls this.
func (t *GuestQuotaTracker) Reset(guestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.usage, guestID)
}

// Seen reports whether the guest has any recorded usage.
func (t *GuestQuotaTracker) Seen(guestID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.usage[guestID]
	return ok
}

func (t *GuestQuotaTracker) Limit() int {
	return t.limit
}

func (t *GuestQuotaTracker) Label() string {
	return t.label
}
