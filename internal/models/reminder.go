package models

import (
	"time"

	"github.com/google/uuid"
)

// TrialReminder guarantees at most one expiry-warning notification per
// (subscription, days-before) pair. Insert-if-absent on the unique pair is
// the idempotency mechanism for scheduler-driven notifications.
type TrialReminder struct {
	SubscriptionID uuid.UUID `json:"subscription_id" db:"subscription_id"`
	TenantID       uuid.UUID `json:"tenant_id" db:"tenant_id"`
	DaysBefore     int       `json:"days_before" db:"days_before"`
	SentAt         time.Time `json:"sent_at" db:"sent_at"`
}
