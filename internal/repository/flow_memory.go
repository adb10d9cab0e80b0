package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soochol/chatflow/internal/chatflow"
	memstore "github.com/soochol/chatflow/internal/repository/memory"
)

// MemoryFlowRepository is a thread-safe in-memory FlowRepository.
type MemoryFlowRepository struct {
	store *memstore.Store[*chatflow.Flow]
}

// NewMemoryFlowRepository creates an empty in-memory repository.
func NewMemoryFlowRepository() *MemoryFlowRepository {
	return &MemoryFlowRepository{
		store: memstore.NewCopying(
			func(f *chatflow.Flow) string { return f.ID },
			func(f *chatflow.Flow) *chatflow.Flow { return f.Clone() },
		),
	}
}

// owned loads a flow and checks that tenantID owns it.
func (r *MemoryFlowRepository) owned(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	f, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: flow %s", chatflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if f.TenantID != tenantID {
		return nil, fmt.Errorf("%w: flow %s requested by tenant %s", chatflow.ErrTenantViolation, id, tenantID)
	}
	return f, nil
}

func (r *MemoryFlowRepository) Create(ctx context.Context, f *chatflow.Flow) error {
	if err := requireTenant(f.TenantID); err != nil {
		return err
	}
	if r.store.Has(ctx, f.ID) {
		return fmt.Errorf("flow %s already exists", f.ID)
	}
	return r.store.Set(ctx, f)
}

func (r *MemoryFlowRepository) Get(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	return r.owned(ctx, tenantID, id)
}

func (r *MemoryFlowRepository) List(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	out, err := r.store.Filter(ctx, func(f *chatflow.Flow) bool {
		return f.TenantID == tenantID && (status == "" || f.Status == status)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryFlowRepository) Count(ctx context.Context, tenantID string) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	return r.store.Count(ctx, func(f *chatflow.Flow) bool { return f.TenantID == tenantID }), nil
}

func (r *MemoryFlowRepository) Update(ctx context.Context, f *chatflow.Flow) error {
	if _, err := r.owned(ctx, f.TenantID, f.ID); err != nil {
		return err
	}
	return r.store.Set(ctx, f)
}

func (r *MemoryFlowRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.owned(ctx, tenantID, id); err != nil {
		return err
	}
	return r.store.Delete(ctx, id)
}

// put stores f without ownership checks. Used to warm the cache from the
// database.
func (r *MemoryFlowRepository) put(ctx context.Context, f *chatflow.Flow) {
	_ = r.store.Set(ctx, f)
}

func (r *MemoryFlowRepository) drop(ctx context.Context, id string) {
	_ = r.store.Delete(ctx, id)
}
