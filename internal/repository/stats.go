package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type LedgerOverview struct {
	AccountCount     int `db:"account_count"`
	AccountsAtZero   int `db:"accounts_at_zero"`
	AvailableTotal   int `db:"available_total"`
	MaxTotal         int `db:"max_total"`
	TransactionTotal int `db:"transaction_total"`
	DeductTotal      int `db:"deduct_total"`
	AllocateTotal    int `db:"allocate_total"`
	ResetTotal       int `db:"reset_total"`
	CredentialTotal  int `db:"credential_total"`
}

type StatsRepository interface {
	GetLedgerOverview(ctx context.Context) (*LedgerOverview, error)
}

type statsRepo struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) StatsRepository {
	return &statsRepo{db: db}
}

func (r *statsRepo) GetLedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	var stats LedgerOverview
	err := r.db.GetContext(ctx, &stats, `
		WITH
			acc AS (SELECT COUNT(*) AS cnt FROM credit_accounts),
			acc_zero AS (SELECT COUNT(*) AS cnt FROM credit_accounts WHERE available_credits = 0),
			avail AS (SELECT COALESCE(SUM(available_credits), 0) AS total FROM credit_accounts),
			cap AS (SELECT COALESCE(SUM(max_credits), 0) AS total FROM credit_accounts),
			txn AS (SELECT COUNT(*) AS cnt FROM credit_transactions),
			txn_deduct AS (SELECT COUNT(*) AS cnt FROM credit_transactions WHERE kind = 'deduct'),
			txn_allocate AS (SELECT COUNT(*) AS cnt FROM credit_transactions WHERE kind = 'allocate'),
			txn_reset AS (SELECT COUNT(*) AS cnt FROM credit_transactions WHERE kind = 'reset'),
			cred AS (SELECT COUNT(*) AS cnt FROM api_credentials)
		SELECT
			acc.cnt AS account_count,
			acc_zero.cnt AS accounts_at_zero,
			avail.total AS available_total,
			cap.total AS max_total,
			txn.cnt AS transaction_total,
			txn_deduct.cnt AS deduct_total,
			txn_allocate.cnt AS allocate_total,
			txn_reset.cnt AS reset_total,
			cred.cnt AS credential_total
		FROM acc, acc_zero, avail, cap, txn,
			txn_deduct, txn_allocate, txn_reset, cred
	`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
