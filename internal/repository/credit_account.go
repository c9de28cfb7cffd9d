package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
)

type CreditAccountRepository interface {
	// FindByID returns nil without error when the identity has no account.
	FindByID(ctx context.Context, identityID string) (*model.CreditAccount, error)
	// Save upserts the account row and appends the audit transaction in a
	// single database transaction.
	Save(ctx context.Context, account *model.CreditAccount, txn model.CreateCreditTransactionParams) (*model.CreditAccount, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.CreditAccount, error)
	IdentityIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

type creditAccountRepo struct {
	db *sqlx.DB
}

func NewCreditAccountRepository(db *sqlx.DB) CreditAccountRepository {
	return &creditAccountRepo{db: db}
}

func (r *creditAccountRepo) FindByID(ctx context.Context, identityID string) (*model.CreditAccount, error) {
	var account model.CreditAccount
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM credit_accounts WHERE identity_id = $1
	`, identityID)
	return HandleNotFound(&account, err)
}

func (r *creditAccountRepo) Save(ctx context.Context, account *model.CreditAccount, txn model.CreateCreditTransactionParams) (*model.CreditAccount, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	saved, err := upsertAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	if err := appendTransaction(ctx, tx, account.IdentityID, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save: %w", err)
	}
	return saved, nil
}

func upsertAccount(ctx context.Context, db sqlxDB, account *model.CreditAccount) (*model.CreditAccount, error) {
	var saved model.CreditAccount
	err := db.GetContext(ctx, &saved, `
		INSERT INTO credit_accounts (identity_id, available_credits, max_credits, last_reset_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE SET
			available_credits = EXCLUDED.available_credits,
			max_credits = EXCLUDED.max_credits,
			last_reset_at = EXCLUDED.last_reset_at,
			updated_at = $5
		RETURNING *
	`, account.IdentityID, account.AvailableCredits, account.MaxCredits, account.LastResetAt, time.Now())
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return &saved, nil
}

func appendTransaction(ctx context.Context, db sqlxDB, identityID string, txn model.CreateCreditTransactionParams) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, identity_id, kind, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), identityID, txn.Kind, txn.Amount, txn.Description)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (r *creditAccountRepo) FindAll(ctx context.Context, limit, offset int) ([]model.CreditAccount, error) {
	var accounts []model.CreditAccount
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM credit_accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *creditAccountRepo) IdentityIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT identity_id FROM credit_accounts ORDER BY identity_id
	`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *creditAccountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM credit_accounts`)
	return count, err
}
