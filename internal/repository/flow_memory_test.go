package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
)

func newTestFlow(id, tenant string) *chatflow.Flow {
	now := time.Now()
	f := &chatflow.Flow{ID: id, TenantID: tenant, Name: "Flow " + id, Status: chatflow.FlowStatusDraft, CreatedAt: now, UpdatedAt: now}
	_, _ = f.AddNode(chatflow.NodeTypeStartTrigger, chatflow.Position{})
	return f
}

func TestMemoryFlowRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryFlowRepository()
	f := newTestFlow("flow-1", "tenant-a")

	if err := repo.Create(ctx, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, f); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	got, err := repo.Get(ctx, "tenant-a", "flow-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Name = "renamed"
	if again, _ := repo.Get(ctx, "tenant-a", "flow-1"); again.Name != "Flow flow-1" {
		t.Fatalf("repository shares state with callers: %q", again.Name)
	}

	got.Status = chatflow.FlowStatusPublished
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	published, _ := repo.List(ctx, "tenant-a", chatflow.FlowStatusPublished)
	if len(published) != 1 || published[0].Name != "renamed" {
		t.Fatalf("list published: %+v", published)
	}
	if n, _ := repo.Count(ctx, "tenant-a"); n != 1 {
		t.Fatalf("count: %d", n)
	}
	if err := repo.Delete(ctx, "tenant-a", "flow-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "tenant-a", "flow-1"); !errors.Is(err, chatflow.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMemoryFlowRepository_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryFlowRepository()
	_ = repo.Create(ctx, newTestFlow("flow-a", "tenant-a"))

	if _, err := repo.Get(ctx, "tenant-b", "flow-a"); !errors.Is(err, chatflow.ErrTenantViolation) {
		t.Errorf("get: got %v", err)
	}
	if err := repo.Update(ctx, newTestFlow("flow-a", "tenant-b")); !errors.Is(err, chatflow.ErrTenantViolation) {
		t.Errorf("update: got %v", err)
	}
	if err := repo.Delete(ctx, "tenant-b", "flow-a"); !errors.Is(err, chatflow.ErrTenantViolation) {
		t.Errorf("delete: got %v", err)
	}
	if _, err := repo.List(ctx, "", ""); !errors.Is(err, chatflow.ErrTenantViolation) {
		t.Errorf("unscoped list: got %v", err)
	}
	if list, _ := repo.List(ctx, "tenant-b", ""); len(list) != 0 {
		t.Errorf("tenant-b sees %d flows", len(list))
	}
	if got, err := repo.Get(ctx, "tenant-a", "flow-a"); err != nil || got.TenantID != "tenant-a" {
		t.Errorf("owner access: %v", err)
	}
}
