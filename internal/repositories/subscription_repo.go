package repositories

import (
	"context"
	"time"

	"spendly/internal/models"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	WithTx(tx DB) SubscriptionRepository
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// GetByExternalID looks a subscription up across all tenants; webhook
	// payloads identify subscriptions only by provider-scoped external id.
	GetByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error)
	// GetNonTerminalTrialForTenant returns the tenant's trialing
	// subscription, or ErrNotFound.
	GetNonTerminalTrialForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	// GetNonTerminalForTenant returns the tenant's current subscription
	// (at most one exists by invariant), or ErrNotFound.
	GetNonTerminalForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	// MarkConverted terminates a trial row and links it to its successor.
	MarkConverted(ctx context.Context, id, successorID uuid.UUID, endedAt time.Time) error
	FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]*models.Subscription, error)
	FindTrialsEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.Subscription, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db DB
}

func NewSubscriptionRepo(db DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) WithTx(tx DB) SubscriptionRepository {
	return &subscriptionRepo{db: tx}
}

const subscriptionColumns = `id, tenant_id, provider, external_subscription_id, plan_id, status, amount, currency,
		current_period_start, current_period_end, trial_ends_at, trial_ended_at,
		cancelled_at, ended_at, converted_to_subscription_id, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, tenant_id, provider, external_subscription_id, plan_id, status, amount, currency,
			current_period_start, current_period_end, trial_ends_at, trial_ended_at,
			cancelled_at, ended_at, converted_to_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.TenantID, s.Provider, s.ExternalSubscriptionID, s.PlanID, s.Status,
		s.Amount, s.Currency, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.TrialEndsAt, s.TrialEndedAt,
		s.CancelledAt, s.EndedAt, s.ConvertedToSubscriptionID)
	return err
}

func (r *subscriptionRepo) scanOne(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.TenantID, &s.Provider, &s.ExternalSubscriptionID, &s.PlanID, &s.Status,
		&s.Amount, &s.Currency, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.TrialEndsAt, &s.TrialEndedAt,
		&s.CancelledAt, &s.EndedAt, &s.ConvertedToSubscriptionID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *subscriptionRepo) GetByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE provider = $1 AND external_subscription_id = $2
	`
	return r.scanOne(r.db.QueryRow(ctx, query, provider, externalID))
}

func (r *subscriptionRepo) GetNonTerminalTrialForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1 AND status = 'trialing'
		FOR UPDATE
	`
	return r.scanOne(r.db.QueryRow(ctx, query, tenantID))
}

func (r *subscriptionRepo) GetNonTerminalForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('trialing', 'active', 'past_due', 'paused')
	`
	return r.scanOne(r.db.QueryRow(ctx, query, tenantID))
}

func (r *subscriptionRepo) Update(ctx context.Context, s *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1, amount = $2, currency = $3, current_period_start = $4, current_period_end = $5,
			trial_ends_at = $6, trial_ended_at = $7, cancelled_at = $8, ended_at = $9,
			converted_to_subscription_id = $10, updated_at = NOW()
		WHERE id = $11
	`
	_, err := r.db.Exec(ctx, query, s.Status, s.Amount, s.Currency, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.TrialEndsAt, s.TrialEndedAt, s.CancelledAt, s.EndedAt, s.ConvertedToSubscriptionID, s.ID)
	return err
}

func (r *subscriptionRepo) MarkConverted(ctx context.Context, id, successorID uuid.UUID, endedAt time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = 'converted', converted_to_subscription_id = $1, trial_ended_at = $2, ended_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'trialing'
	`
	tag, err := r.db.Exec(ctx, query, successorID, endedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'trialing' AND trial_ends_at <= $1
		ORDER BY trial_ends_at
		LIMIT $2
	`
	return r.list(ctx, query, asOf, limit)
}

func (r *subscriptionRepo) FindTrialsEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'trialing' AND trial_ends_at > $1 AND trial_ends_at <= $2
		ORDER BY trial_ends_at
		LIMIT $3
	`
	return r.list(ctx, query, from, to, limit)
}

func (r *subscriptionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, tenantID, limit, offset)
}

func (r *subscriptionRepo) list(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		s, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, s)
	}
	return subscriptions, rows.Err()
}
