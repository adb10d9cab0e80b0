// Package repository defines storage interfaces for domain entities. Every
// flow read and write is scoped by tenant; a request that reaches another
// tenant's flow fails with chatflow.ErrTenantViolation.
package repository

import (
	"context"
	"fmt"

	"github.com/soochol/chatflow/internal/chatflow"
)

// FlowRepository abstracts flow persistence so callers don't need to know
// whether storage is in-memory, PostgreSQL, SQLite, or a mix.
type FlowRepository interface {
	Create(ctx context.Context, f *chatflow.Flow) error
	Get(ctx context.Context, tenantID, id string) (*chatflow.Flow, error)
	// List returns a tenant's flows; an empty status lists all of them.
	List(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error)
	Count(ctx context.Context, tenantID string) (int, error)
	Update(ctx context.Context, f *chatflow.Flow) error
	Delete(ctx context.Context, tenantID, id string) error
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", chatflow.ErrTenantViolation)
	}
	return nil
}
