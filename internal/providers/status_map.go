package providers

import "spendly/internal/models"

// statusTables maps each provider's raw status vocabulary onto the canonical
// SubscriptionStatus set. The tables are static configuration: a status is
// either listed here or treated as a mapping gap by the caller. Every raw
// status a provider is known to emit must appear exactly once.
var statusTables = map[Provider]map[string]models.SubscriptionStatus{
	ProviderStripe: {
		"trialing":           models.StatusTrialing,
		"active":             models.StatusActive,
		"past_due":           models.StatusPastDue,
		"unpaid":             models.StatusPastDue,
		"incomplete":         models.StatusPastDue,
		"incomplete_expired": models.StatusExpired,
		"paused":             models.StatusPaused,
		"canceled":           models.StatusCancelled,
	},
	ProviderPaypal: {
		"APPROVAL_PENDING": models.StatusPastDue,
		"APPROVED":         models.StatusActive,
		"ACTIVE":           models.StatusActive,
		"SUSPENDED":        models.StatusPaused,
		"CANCELLED":        models.StatusCancelled,
		"EXPIRED":          models.StatusExpired,
	},
	ProviderPaddle: {
		"trialing": models.StatusTrialing,
		"active":   models.StatusActive,
		"past_due": models.StatusPastDue,
		"paused":   models.StatusPaused,
		"canceled": models.StatusCancelled,
	},
}

// MapStatus translates a provider raw status into the canonical status.
// known is false for statuses missing from the table; callers apply the
// safe default (past_due) and log the mapping gap.
func MapStatus(p Provider, raw string) (status models.SubscriptionStatus, known bool) {
	table, ok := statusTables[p]
	if !ok {
		return models.StatusPastDue, false
	}
	status, known = table[raw]
	if !known {
		return models.StatusPastDue, false
	}
	return status, true
}

// KnownStatuses returns the raw statuses listed for a provider.
func KnownStatuses(p Provider) []string {
	statuses := make([]string, 0, len(statusTables[p]))
	for raw := range statusTables[p] {
		statuses = append(statuses, raw)
	}
	return statuses
}
