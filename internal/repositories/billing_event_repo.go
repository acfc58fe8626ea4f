package repositories

import (
	"context"
	"time"

	"spendly/internal/models"

	"github.com/google/uuid"
)

type BillingEventRepository interface {
	WithTx(tx DB) BillingEventRepository
	// InsertDedup appends a ledger row. When the event carries an external
	// event id, the unique (provider, external_event_id) constraint makes
	// the insert race-safe under duplicate delivery: inserted is false when
	// the row already existed and the event must be treated as a no-op.
	InsertDedup(ctx context.Context, event *models.BillingEvent) (inserted bool, err error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.BillingEvent, error)
	// DeleteOlderThan prunes ledger rows past the retention window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type billingEventRepo struct {
	db DB
}

func NewBillingEventRepo(db DB) BillingEventRepository {
	return &billingEventRepo{db: db}
}

func (r *billingEventRepo) WithTx(tx DB) BillingEventRepository {
	return &billingEventRepo{db: tx}
}

func (r *billingEventRepo) InsertDedup(ctx context.Context, e *models.BillingEvent) (bool, error) {
	query := `
		INSERT INTO billing_events (id, provider, external_event_id, subscription_id, tenant_id,
			event_type, previous_status, new_status, source, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (provider, external_event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, e.ID, e.Provider, e.ExternalEventID, e.SubscriptionID, e.TenantID,
		e.EventType, e.PreviousStatus, e.NewStatus, e.Source, e.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *billingEventRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.BillingEvent, error) {
	query := `
		SELECT id, provider, external_event_id, subscription_id, tenant_id,
			event_type, previous_status, new_status, source, payload, created_at
		FROM billing_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.BillingEvent
	for rows.Next() {
		e := &models.BillingEvent{}
		if err := rows.Scan(&e.ID, &e.Provider, &e.ExternalEventID, &e.SubscriptionID, &e.TenantID,
			&e.EventType, &e.PreviousStatus, &e.NewStatus, &e.Source, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *billingEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM billing_events WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
