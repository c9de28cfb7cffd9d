package model

import (
	"time"
)

// APICredential maps a hashed bearer token to a registered identity. The
// plaintext token is returned once at mint time and never stored.
type APICredential struct {
	ID         string     `db:"id" json:"id"`
	IdentityID string     `db:"identity_id" json:"identityId"`
	TokenHash  string     `db:"token_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	LastUsedAt *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
}

type CreateCredentialParams struct {
	IdentityID string
	TokenHash  string
}
