package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soochol/chatflow/internal/chatflow"
)

// FlowDB defines the DB-layer methods needed by the persistent flow repo.
// *db.DB satisfies this interface.
type FlowDB interface {
	CreateFlow(ctx context.Context, f *chatflow.Flow) error
	GetFlow(ctx context.Context, tenantID, id string) (*chatflow.Flow, error)
	ListFlows(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error)
	CountFlows(ctx context.Context, tenantID string) (int, error)
	UpdateFlow(ctx context.Context, f *chatflow.Flow) error
	DeleteFlow(ctx context.Context, tenantID, id string) error
}

// PersistentFlowRepository wraps MemoryFlowRepository with a SQL backend.
// Writes go to the database first and then to memory. Reads try memory
// first; on miss, fall back to the database and cache.
type PersistentFlowRepository struct {
	mem *MemoryFlowRepository
	db  FlowDB
}

func NewPersistentFlowRepository(mem *MemoryFlowRepository, db FlowDB) *PersistentFlowRepository {
	return &PersistentFlowRepository{mem: mem, db: db}
}

func (r *PersistentFlowRepository) Create(ctx context.Context, f *chatflow.Flow) error {
	if err := requireTenant(f.TenantID); err != nil {
		return err
	}
	if err := r.db.CreateFlow(ctx, f); err != nil {
		return fmt.Errorf("db create flow: %w", err)
	}
	r.mem.put(ctx, f)
	return nil
}

func (r *PersistentFlowRepository) Get(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	f, err := r.mem.Get(ctx, tenantID, id)
	if err == nil || errors.Is(err, chatflow.ErrTenantViolation) {
		return f, err
	}
	f, err = r.db.GetFlow(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	r.mem.put(ctx, f)
	return f, nil
}

func (r *PersistentFlowRepository) List(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	flows, err := r.db.ListFlows(ctx, tenantID, status)
	if err == nil {
		return flows, nil
	}
	slog.Warn("db list flows failed, falling back to in-memory", "tenant", tenantID, "err", err)
	return r.mem.List(ctx, tenantID, status)
}

func (r *PersistentFlowRepository) Count(ctx context.Context, tenantID string) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	return r.db.CountFlows(ctx, tenantID)
}

func (r *PersistentFlowRepository) Update(ctx context.Context, f *chatflow.Flow) error {
	if err := requireTenant(f.TenantID); err != nil {
		return err
	}
	if err := r.db.UpdateFlow(ctx, f); err != nil {
		return fmt.Errorf("db update flow: %w", err)
	}
	r.mem.put(ctx, f)
	return nil
}

func (r *PersistentFlowRepository) Delete(ctx context.Context, tenantID, id string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if err := r.db.DeleteFlow(ctx, tenantID, id); err != nil {
		return fmt.Errorf("db delete flow: %w", err)
	}
	r.mem.drop(ctx, id)
	return nil
}
