package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventSource identifies what triggered a ledger entry.
type EventSource string

const (
	SourceWebhook   EventSource = "webhook"
	SourceScheduler EventSource = "scheduler"
	SourceManual    EventSource = "manual"
)

// Ledger event types.
const (
	EventSubscriptionCreated     = "subscription_created"
	EventSubscriptionUpdated     = "subscription_updated"
	EventSubscriptionCancelled   = "subscription_cancelled"
	EventSubscriptionReactivated = "subscription_reactivated"
	EventTrialConverted          = "trial_converted"
	EventTrialExpired            = "trial_expired"
	EventChargeSucceeded         = "charge_succeeded"
	EventChargeFailed            = "charge_failed"
)

// BillingEvent is an append-only ledger entry. Rows are never updated or
// deleted after creation; the unique (provider, external_event_id) pair
// doubles as the webhook idempotency key.
type BillingEvent struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Provider        string              `json:"provider" db:"provider"`
	ExternalEventID *string             `json:"external_event_id" db:"external_event_id"`
	SubscriptionID  *uuid.UUID          `json:"subscription_id" db:"subscription_id"`
	TenantID        *uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	EventType       string              `json:"event_type" db:"event_type"`
	PreviousStatus  *SubscriptionStatus `json:"previous_status" db:"previous_status"`
	NewStatus       *SubscriptionStatus `json:"new_status" db:"new_status"`
	Source          EventSource         `json:"source" db:"source"`
	Payload         json.RawMessage     `json:"payload" db:"payload"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}
