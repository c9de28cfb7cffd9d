package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/repository"
)

// CreditResetter is the slice of the ledger the reset task needs.
type CreditResetter interface {
	ResetAll(ctx context.Context) (int, error)
	ResetStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewDailyCreditResetTask refills every registered account at the given UTC
// time. Its catch-up pass resets accounts whose last reset is older than
// interval, so a process that was down at the trigger instant heals itself
// on the next start.
func NewDailyCreditResetTask(resetter CreditResetter, hour, minute int, interval time.Duration) Task {
	return Task{
		Name:   "daily_credit_reset",
		Hour:   hour,
		Minute: minute,
		Run: func(ctx context.Context) error {
			count, err := resetter.ResetAll(ctx)
			if err != nil {
				return fmt.Errorf("reset all: %w", err)
			}
			log.Info().Int("count", count).Msg("daily credit reset completed")
			return nil
		},
		CatchUp: func(ctx context.Context) error {
			count, err := resetter.ResetStale(ctx, interval)
			if err != nil {
				return fmt.Errorf("reset stale: %w", err)
			}
			if count > 0 {
				log.Info().Int("count", count).Msg("catch-up credit reset completed")
			}
			return nil
		},
	}
}

// NewLedgerSnapshotTask logs aggregate ledger figures once a day so
// operators can watch balances drift without querying the database.
func NewLedgerSnapshotTask(statsRepo repository.StatsRepository, hour, minute int) Task {
	return Task{
		Name:   "ledger_snapshot",
		Hour:   hour,
		Minute: minute,
		Run: func(ctx context.Context) error {
			stats, err := statsRepo.GetLedgerOverview(ctx)
			if err != nil {
				return fmt.Errorf("ledger overview: %w", err)
			}
			log.Info().
				Int("accounts", stats.AccountCount).
				Int("accountsAtZero", stats.AccountsAtZero).
				Int("availableTotal", stats.AvailableTotal).
				Int("maxTotal", stats.MaxTotal).
				Int("transactions", stats.TransactionTotal).
				Int("credentials", stats.CredentialTotal).
				Msg("ledger snapshot")
			return nil
		},
	}
}
