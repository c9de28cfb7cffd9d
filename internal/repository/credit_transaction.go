package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
)

// CreditTransactionRepository reads the append-only audit trail. Writes go
// through CreditAccountRepository.Save so the balance and its transaction
// always land together.
type CreditTransactionRepository interface {
	FindByIdentityID(ctx context.Context, identityID string, limit, offset int) ([]model.CreditTransaction, error)
	CountByIdentityID(ctx context.Context, identityID string) (int, error)
}

type creditTransactionRepo struct {
	db *sqlx.DB
}

func NewCreditTransactionRepository(db *sqlx.DB) CreditTransactionRepository {
	return &creditTransactionRepo{db: db}
}

func (r *creditTransactionRepo) FindByIdentityID(ctx context.Context, identityID string, limit, offset int) ([]model.CreditTransaction, error) {
	var txns []model.CreditTransaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM credit_transactions
		WHERE identity_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, identityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *creditTransactionRepo) CountByIdentityID(ctx context.Context, identityID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM credit_transactions WHERE identity_id = $1
	`, identityID)
	return count, err
}
