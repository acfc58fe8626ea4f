package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the outcome of a single charge attempt.
type TransactionStatus string

const (
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction records one charge attempt reported by a provider. One row per
// invoice/charge attempt, deduplicated on (provider, provider_transaction_id)
// since providers assign ids independently.
type Transaction struct {
	ID                    uuid.UUID         `json:"id" db:"id"`
	SubscriptionID        uuid.UUID         `json:"subscription_id" db:"subscription_id"`
	TenantID              uuid.UUID         `json:"tenant_id" db:"tenant_id"`
	Provider              string            `json:"provider" db:"provider"`
	Amount                float64           `json:"amount" db:"amount"`
	Currency              string            `json:"currency" db:"currency"`
	Status                TransactionStatus `json:"status" db:"status"`
	ProviderTransactionID string            `json:"provider_transaction_id" db:"provider_transaction_id"`
	PeriodStart           *time.Time        `json:"period_start" db:"period_start"`
	PeriodEnd             *time.Time        `json:"period_end" db:"period_end"`
	FailureReason         *string           `json:"failure_reason" db:"failure_reason"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
}
