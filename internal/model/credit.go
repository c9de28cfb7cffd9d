package model

import (
	"time"
)

// CreditAccount is the durable per-identity balance row. It is mutated only
// through the ledger's deduct/allocate/reset operations.
type CreditAccount struct {
	IdentityID       string    `db:"identity_id" json:"identityId"`
	AvailableCredits int       `db:"available_credits" json:"availableCredits"`
	MaxCredits       int       `db:"max_credits" json:"maxCredits"`
	LastResetAt      time.Time `db:"last_reset_at" json:"lastResetAt"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a copy safe to hand to callers while the ledger keeps
// mutating its own instance.
func (a *CreditAccount) Clone() *CreditAccount {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

type TransactionKind string

const (
	TransactionDeduct   TransactionKind = "deduct"
	TransactionAllocate TransactionKind = "allocate"
	TransactionReset    TransactionKind = "reset"
)

// CreditTransaction is an append-only audit entry, one per mutating ledger
// operation. Rows are never updated or deleted.
type CreditTransaction struct {
	ID          string          `db:"id" json:"id"`
	IdentityID  string          `db:"identity_id" json:"identityId"`
	Kind        TransactionKind `db:"kind" json:"kind"`
	Amount      int             `db:"amount" json:"amount"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

type CreateCreditTransactionParams struct {
	Kind        TransactionKind
	Amount      int
	Description *string
}

// CreditStatus is the derived, caller-facing view of a balance. It is
// recomputed on every query and never stored.
type CreditStatus struct {
	AvailableCredits int        `json:"availableCredits"`
	MaxCredits       int        `json:"maxCredits"`
	IsGuest          bool       `json:"isGuest"`
	CanReset         bool       `json:"canReset"`
	NextResetTime    *time.Time `json:"nextResetTime,omitempty"`
}

// Caller identifies who is spending credits on a request. Registered callers
// carry the identity resolved from credentials; guests carry a session- or
// address-derived identifier.
type Caller struct {
	IdentityID string
	IsGuest    bool
}
