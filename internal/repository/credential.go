package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
)

type CredentialRepository interface {
	Create(ctx context.Context, params model.CreateCredentialParams) (*model.APICredential, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.APICredential, error)
	TouchLastUsed(ctx context.Context, id string) error
	DeleteByIdentityID(ctx context.Context, identityID string) (int64, error)
}

type credentialRepo struct {
	db *sqlx.DB
}

func NewCredentialRepository(db *sqlx.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Create(ctx context.Context, params model.CreateCredentialParams) (*model.APICredential, error) {
	var credential model.APICredential
	err := r.db.GetContext(ctx, &credential, `
		INSERT INTO api_credentials (id, identity_id, token_hash)
		VALUES ($1, $2, $3)
		RETURNING *
	`, uuid.NewString(), params.IdentityID, params.TokenHash)
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *credentialRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.APICredential, error) {
	var credential model.APICredential
	err := r.db.GetContext(ctx, &credential, `
		SELECT * FROM api_credentials
		WHERE token_hash = $1
	`, tokenHash)
	return HandleNotFound(&credential, err)
}

// TouchLastUsed is best effort bookkeeping. Callers log failures instead of
// rejecting the request.
func (r *credentialRepo) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_credentials SET last_used_at = $2 WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *credentialRepo) DeleteByIdentityID(ctx context.Context, identityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM api_credentials WHERE identity_id = $1
	`, identityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
