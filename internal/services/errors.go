package services

import (
	"errors"
	"fmt"

	"spendly/internal/models"
)

var (
	// ErrDuplicateEvent means the external event id was already applied.
	// Callers acknowledge duplicates as success without mutation.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrUnresolvedTenant means the event references an external customer
	// or subscription id with no local match. Acknowledged and logged as a
	// data-linkage gap; retrying will not help.
	ErrUnresolvedTenant = errors.New("unresolved tenant")
)

// InvalidTransitionError reports a status transition the state machine does
// not permit. The operation is aborted without partial mutation and logged
// as a data-integrity warning.
type InvalidTransitionError struct {
	From models.SubscriptionStatus
	To   models.SubscriptionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid subscription transition %s -> %s", e.From, e.To)
}
