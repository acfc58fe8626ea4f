package models

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	PlanID    string    `json:"plan_id" db:"plan_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProviderCustomer links an external provider customer id to a tenant. A
// tenant has at most one row per provider it has ever checked out with.
type ProviderCustomer struct {
	TenantID           uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Provider           string    `json:"provider" db:"provider"`
	ExternalCustomerID string    `json:"external_customer_id" db:"external_customer_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}
