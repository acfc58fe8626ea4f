package repositories

import (
	"context"

	"spendly/internal/models"

	"github.com/google/uuid"
)

type TenantRepository interface {
	WithTx(tx DB) TenantRepository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// GetByProviderCustomerID resolves the tenant a webhook's external
	// customer id belongs to, or ErrNotFound for a linkage gap.
	GetByProviderCustomerID(ctx context.Context, provider, externalCustomerID string) (*models.Tenant, error)
	LinkProviderCustomer(ctx context.Context, link *models.ProviderCustomer) error
}

type tenantRepo struct {
	db DB
}

func NewTenantRepo(db DB) TenantRepository {
	return &tenantRepo{db: db}
}

func (r *tenantRepo) WithTx(tx DB) TenantRepository {
	return &tenantRepo{db: tx}
}

func (r *tenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	query := `
		SELECT id, name, plan_id, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&tenant.ID, &tenant.Name, &tenant.PlanID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return tenant, nil
}

func (r *tenantRepo) GetByProviderCustomerID(ctx context.Context, provider, externalCustomerID string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	query := `
		SELECT t.id, t.name, t.plan_id, t.created_at, t.updated_at
		FROM tenants t
		JOIN provider_customers pc ON pc.tenant_id = t.id
		WHERE pc.provider = $1 AND pc.external_customer_id = $2
	`
	err := r.db.QueryRow(ctx, query, provider, externalCustomerID).Scan(&tenant.ID, &tenant.Name, &tenant.PlanID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return tenant, nil
}

func (r *tenantRepo) LinkProviderCustomer(ctx context.Context, link *models.ProviderCustomer) error {
	query := `
		INSERT INTO provider_customers (tenant_id, provider, external_customer_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider, external_customer_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, link.TenantID, link.Provider, link.ExternalCustomerID)
	return err
}
