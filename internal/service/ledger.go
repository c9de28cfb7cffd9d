package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/repository"
)

// CreditLedger owns registered-identity balances. Every mutation for one
// identity runs under that identity's own lock, so two concurrent deducts
// can never both spend the last credit, while unrelated identities never
// serialize each other. Accounts are hydrated from the store on first touch
// and kept authoritative in memory; a mutation is persisted together with
// its audit transaction before it becomes visible.
type CreditLedger struct {
	accountRepo repository.CreditAccountRepository
	maxCredits  int
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

// ledgerEntry pairs an identity's lock with its hydrated account. Entries
// are created lazily and never evicted.
type ledgerEntry struct {
	mu      sync.Mutex
	account *model.CreditAccount
	loaded  bool
}

func NewCreditLedger(accountRepo repository.CreditAccountRepository, maxCredits int) *CreditLedger {
	return &CreditLedger{
		accountRepo: accountRepo,
		maxCredits:  maxCredits,
		now:         time.Now,
		entries:     make(map[string]*ledgerEntry),
	}
}

// Deduct atomically spends amount credits. The account is created on first
// touch with a full balance. Fails with ErrInsufficientCredits when the
// balance cannot cover the amount; nothing is recorded in that case.
func (l *CreditLedger) Deduct(ctx context.Context, identityID string, amount int) (*model.CreditAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credits: deduct amount must be positive, got %d", amount)
	}

	e := l.entry(identityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := l.hydrate(ctx, e, identityID, true); err != nil {
		return nil, err
	}
	if e.account.AvailableCredits < amount {
		return nil, ErrInsufficientCredits
	}

	next := e.account.Clone()
	next.AvailableCredits -= amount
	return l.commit(ctx, e, next, model.CreateCreditTransactionParams{
		Kind:   model.TransactionDeduct,
		Amount: amount,
	})
}

// Allocate credits the account, clamped to its ceiling. The recorded
// transaction amount is the applied delta, so the audit trail always sums
// to the balance.
func (l *CreditLedger) Allocate(ctx context.Context, identityID string, amount int) (*model.CreditAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credits: allocate amount must be positive, got %d", amount)
	}

	e := l.entry(identityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := l.hydrate(ctx, e, identityID, true); err != nil {
		return nil, err
	}

	credited := amount
	if room := e.account.MaxCredits - e.account.AvailableCredits; credited > room {
		credited = room
	}

	next := e.account.Clone()
	next.AvailableCredits += credited
	description := "administrative grant"
	return l.commit(ctx, e, next, model.CreateCreditTransactionParams{
		Kind:        model.TransactionAllocate,
		Amount:      credited,
		Description: &description,
	})
}

// ResetOne refills the account to its ceiling and stamps the reset time.
// Resetting an already-full account still appends a transaction. Fails with
// ErrAccountNotFound when the identity has never been seen.
func (l *CreditLedger) ResetOne(ctx context.Context, identityID string) (*model.CreditAccount, error) {
	e := l.entry(identityID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.resetLocked(ctx, e, identityID, "manual reset")
}

// ResetAll applies ResetOne semantics to every known account, each under its
// own lock, and returns the number reset. Failures on individual accounts
// are logged and skipped so one bad row never blocks the rest.
func (l *CreditLedger) ResetAll(ctx context.Context) (int, error) {
	ids, err := l.knownIdentities(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		e := l.entry(id)
		e.mu.Lock()
		_, err := l.resetLocked(ctx, e, id, "bulk reset")
		e.mu.Unlock()
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			log.Error().Err(err).Str("identityId", id).Msg("bulk reset skipped account")
			continue
		}
		count++
	}
	return count, nil
}

// ResetStale refills only the accounts whose last reset is at least
// olderThan in the past. Run at startup to catch up resets missed while the
// process was down.
func (l *CreditLedger) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := l.knownIdentities(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := l.now().UTC().Add(-olderThan)

	count := 0
	for _, id := range ids {
		e := l.entry(id)
		e.mu.Lock()
		if err := l.hydrate(ctx, e, id, false); err != nil {
			e.mu.Unlock()
			log.Error().Err(err).Str("identityId", id).Msg("catch-up reset skipped account")
			continue
		}
		if e.account == nil || e.account.LastResetAt.After(cutoff) {
			e.mu.Unlock()
			continue
		}
		_, err := l.resetLocked(ctx, e, id, "catch-up reset")
		e.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("identityId", id).Msg("catch-up reset skipped account")
			continue
		}
		count++
	}
	return count, nil
}

// MaxCredits is the ceiling given to lazily created accounts.
func (l *CreditLedger) MaxCredits() int {
	return l.maxCredits
}

// Get returns a snapshot of the account without mutating or creating it.
func (l *CreditLedger) Get(ctx context.Context, identityID string) (*model.CreditAccount, error) {
	e := l.entry(identityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := l.hydrate(ctx, e, identityID, false); err != nil {
		return nil, err
	}
	if e.account == nil {
		return nil, ErrAccountNotFound
	}
	return e.account.Clone(), nil
}

func (l *CreditLedger) entry(identityID string) *ledgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identityID]
	if !ok {
		e = &ledgerEntry{}
		l.entries[identityID] = e
	}
	return e
}

// hydrate loads the entry's account from the store, seeding a fresh
// full-balance account when the identity is unknown and create is set.
// Caller must hold e.mu.
func (l *CreditLedger) hydrate(ctx context.Context, e *ledgerEntry, identityID string, create bool) error {
	if !e.loaded {
		account, err := l.accountRepo.FindByID(ctx, identityID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		e.account = account
		e.loaded = true
	}
	if e.account == nil && create {
		now := l.now().UTC()
		e.account = &model.CreditAccount{
			IdentityID:       identityID,
			AvailableCredits: l.maxCredits,
			MaxCredits:       l.maxCredits,
			LastResetAt:      now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		log.Debug().Str("identityId", identityID).Int("maxCredits", l.maxCredits).Msg("credit account created")
	}
	return nil
}

// resetLocked refills the account and records the credited delta. Caller
// must hold e.mu.
func (l *CreditLedger) resetLocked(ctx context.Context, e *ledgerEntry, identityID, description string) (*model.CreditAccount, error) {
	if err := l.hydrate(ctx, e, identityID, false); err != nil {
		return nil, err
	}
	if e.account == nil {
		return nil, ErrAccountNotFound
	}

	next := e.account.Clone()
	credited := next.MaxCredits - next.AvailableCredits
	next.AvailableCredits = next.MaxCredits
	next.LastResetAt = l.now().UTC()
	return l.commit(ctx, e, next, model.CreateCreditTransactionParams{
		Kind:        model.TransactionReset,
		Amount:      credited,
		Description: &description,
	})
}

// commit persists the mutated account with its audit transaction and only
// then makes it the entry's visible state. A failed save leaves the previous
// balance in place. Caller must hold e.mu.
func (l *CreditLedger) commit(ctx context.Context, e *ledgerEntry, next *model.CreditAccount, txn model.CreateCreditTransactionParams) (*model.CreditAccount, error) {
	saved, err := l.accountRepo.Save(ctx, next, txn)
	if err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}
	e.account = saved
	return saved.Clone(), nil
}

// knownIdentities unions the store's identities with entries already
// hydrated in memory, so freshly created accounts that have not produced a
// store row yet are still covered by bulk operations.
func (l *CreditLedger) knownIdentities(ctx context.Context) ([]string, error) {
	ids, err := l.accountRepo.IdentityIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	l.mu.Lock()
	for id := range l.entries {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	l.mu.Unlock()
	return ids, nil
}
