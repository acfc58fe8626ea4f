package repositories

import (
	"context"

	"spendly/internal/models"

	"github.com/google/uuid"
)

type TransactionRepository interface {
	WithTx(tx DB) TransactionRepository
	// InsertDedup appends a charge record. inserted is false when the
	// (provider, provider_transaction_id) pair was already recorded.
	InsertDedup(ctx context.Context, txn *models.Transaction) (inserted bool, err error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

type transactionRepo struct {
	db DB
}

func NewTransactionRepo(db DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) WithTx(tx DB) TransactionRepository {
	return &transactionRepo{db: tx}
}

func (r *transactionRepo) InsertDedup(ctx context.Context, t *models.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (id, subscription_id, tenant_id, provider, amount, currency, status,
			provider_transaction_id, period_start, period_end, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (provider, provider_transaction_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, t.ID, t.SubscriptionID, t.TenantID, t.Provider, t.Amount, t.Currency, t.Status,
		t.ProviderTransactionID, t.PeriodStart, t.PeriodEnd, t.FailureReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *transactionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT id, subscription_id, tenant_id, provider, amount, currency, status,
			provider_transaction_id, period_start, period_end, failure_reason, created_at
		FROM transactions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		if err := rows.Scan(&t.ID, &t.SubscriptionID, &t.TenantID, &t.Provider, &t.Amount, &t.Currency, &t.Status,
			&t.ProviderTransactionID, &t.PeriodStart, &t.PeriodEnd, &t.FailureReason, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
