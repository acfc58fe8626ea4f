package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the canonical, provider-agnostic subscription state.
// Provider raw statuses are mapped onto this set at the normalization
// boundary and nothing downstream ever sees provider vocabulary.
type SubscriptionStatus string

const (
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusPaused    SubscriptionStatus = "paused"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusConverted SubscriptionStatus = "converted"
	StatusExpired   SubscriptionStatus = "expired"
)

// IsValid reports whether s is one of the canonical statuses.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusPaused,
		StatusCancelled, StatusConverted, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusConverted, StatusExpired:
		return true
	}
	return false
}

// legalTransitions is the full transition table of the state machine.
// Terminal statuses have no outbound edges.
var legalTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusTrialing: {StatusActive, StatusCancelled, StatusConverted, StatusExpired},
	StatusActive:   {StatusPastDue, StatusCancelled, StatusPaused},
	StatusPastDue:  {StatusActive, StatusCancelled},
	StatusPaused:   {StatusActive, StatusCancelled},
}

// CanTransitionTo reports whether from -> to is a legal status transition.
func (s SubscriptionStatus) CanTransitionTo(to SubscriptionStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Subscription struct {
	ID                        uuid.UUID          `json:"id" db:"id"`
	TenantID                  uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	Provider                  string             `json:"provider" db:"provider"`
	ExternalSubscriptionID    *string            `json:"external_subscription_id" db:"external_subscription_id"`
	PlanID                    string             `json:"plan_id" db:"plan_id"`
	Status                    SubscriptionStatus `json:"status" db:"status"`
	Amount                    float64            `json:"amount" db:"amount"`
	Currency                  string             `json:"currency" db:"currency"`
	CurrentPeriodStart        time.Time          `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd          *time.Time         `json:"current_period_end" db:"current_period_end"`
	TrialEndsAt               *time.Time         `json:"trial_ends_at" db:"trial_ends_at"`
	TrialEndedAt              *time.Time         `json:"trial_ended_at" db:"trial_ended_at"`
	CancelledAt               *time.Time         `json:"cancelled_at" db:"cancelled_at"`
	EndedAt                   *time.Time         `json:"ended_at" db:"ended_at"`
	ConvertedToSubscriptionID *uuid.UUID         `json:"converted_to_subscription_id" db:"converted_to_subscription_id"`
	CreatedAt                 time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time          `json:"updated_at" db:"updated_at"`
}
