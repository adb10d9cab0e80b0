package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/repository"
	"github.com/soochol/chatflow/internal/validator"
)

type recorder struct {
	mu     sync.Mutex
	events []chatflow.Event
}

func (r *recorder) Publish(e chatflow.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []chatflow.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chatflow.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newService(quota PlanQuota) (*FlowService, *recorder) {
	rec := &recorder{}
	return NewFlowService(repository.NewMemoryFlowRepository(), quota, rec), rec
}

func TestFlowService_CreateStartsAsDraft(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", FlowInput{Name: "Welcome"})
	require.NoError(t, err)
	assert.Equal(t, chatflow.FlowStatusDraft, f.Status)
	assert.Equal(t, "t1", f.TenantID)
	assert.Empty(t, f.Nodes)

	_, err = svc.Create(ctx, "t1", FlowInput{Name: "  "})
	assert.Error(t, err)
}

func TestFlowService_SimpleFlowPublishes(t *testing.T) {
	svc, rec := newService(PlanQuota{})
	ctx := context.Background()
	f, err := svc.Create(ctx, "t1", FlowInput{Name: "Welcome"})
	require.NoError(t, err)

	start, err := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeStartTrigger, chatflow.Position{X: 0, Y: 0})
	require.NoError(t, err)
	text, err := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{X: 0, Y: 120})
	require.NoError(t, err)
	_, err = svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: start.ID, Target: text.ID})
	require.NoError(t, err)

	issues, err := svc.Validate(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Empty(t, issues)

	published, warnings, err := svc.Publish(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, chatflow.FlowStatusPublished, published.Status)

	live, err := svc.PublishedFlows(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, live, 1)

	unpublished, err := svc.Unpublish(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, chatflow.FlowStatusDraft, unpublished.Status)
	assert.Equal(t, []chatflow.EventType{chatflow.EventFlowPublished, chatflow.EventFlowUnpublished}, rec.types())
}

func TestFlowService_DeadEndWarningsDoNotBlock(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Menu"})

	start, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeStartTrigger, chatflow.Position{})
	qr, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeQuickReplies, chatflow.Position{})
	text, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
	_, err := svc.UpdateNodeData(ctx, "t1", f.ID, qr.ID, map[string]any{
		"buttons": []any{
			map[string]any{"label": "One"},
			map[string]any{"label": "Two"},
			map[string]any{"label": "Three"},
		},
	})
	require.NoError(t, err)
	_, err = svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: start.ID, Target: qr.ID})
	require.NoError(t, err)
	_, err = svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: qr.ID, SourceHandle: chatflow.ButtonHandle(0), Target: text.ID, Label: "one"})
	require.NoError(t, err)

	published, warnings, err := svc.Publish(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, chatflow.FlowStatusPublished, published.Status)
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.Equal(t, validator.LevelWarning, w.Level)
		assert.Equal(t, validator.CodeDeadEnd, w.Code)
	}
}

func TestFlowService_PublishRefused(t *testing.T) {
	svc, rec := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Twins"})
	_, _ = svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeStartTrigger, chatflow.Position{})
	_, _ = svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeStartTrigger, chatflow.Position{})

	_, _, err := svc.Publish(ctx, "t1", f.ID)
	pe, ok := AsPublishError(err)
	require.True(t, ok, "got %v", err)
	require.Len(t, pe.Issues, 1)
	assert.Equal(t, validator.CodeMultipleEntryPoints, pe.Issues[0].Code)

	stored, err := svc.Get(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, chatflow.FlowStatusDraft, stored.Status)
	assert.Equal(t, []chatflow.EventType{chatflow.EventPublishRefused}, rec.types())
}

func TestFlowService_RejectedEditLeavesStorage(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Loop"})
	n, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})

	_, err := svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: n.ID, Target: n.ID})
	assert.ErrorIs(t, err, chatflow.ErrSelfLoop)
	assert.True(t, chatflow.IsStructural(err))

	stored, _ := svc.Get(ctx, "t1", f.ID)
	assert.Empty(t, stored.Edges)
}

func TestFlowService_NodeEditsAreAtomic(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Wait"})

	_, err := svc.AddNodeWithData(ctx, "t1", f.ID, chatflow.NodeTypeWaitResponse, chatflow.Position{},
		map[string]any{"timeoutSeconds": "not-a-number"})
	require.Error(t, err)
	stored, _ := svc.Get(ctx, "t1", f.ID)
	assert.Empty(t, stored.Nodes)

	n, err := svc.AddNodeWithData(ctx, "t1", f.ID, chatflow.NodeTypeWaitResponse, chatflow.Position{X: 1},
		map[string]any{"timeoutSeconds": 30})
	require.NoError(t, err)
	assert.Equal(t, 30, n.Data.(*chatflow.WaitResponseData).TimeoutSeconds)

	_, err = svc.EditNode(ctx, "t1", f.ID, n.ID, NodeEdit{
		Position: &chatflow.Position{X: 50, Y: 50},
		Data:     map[string]any{"timeoutSeconds": "later"},
	})
	require.Error(t, err)
	stored, _ = svc.Get(ctx, "t1", f.ID)
	kept, _ := stored.Node(n.ID)
	assert.Equal(t, chatflow.Position{X: 1}, kept.Position)
	assert.Equal(t, 30, kept.Data.(*chatflow.WaitResponseData).TimeoutSeconds)
}

func TestFlowService_RemoveNodeCascades(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Cascade"})
	start, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeStartTrigger, chatflow.Position{})
	mid, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
	end, _ := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
	_, _ = svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: start.ID, Target: mid.ID})
	_, _ = svc.Connect(ctx, "t1", f.ID, ConnectRequest{Source: mid.ID, Target: end.ID})

	require.NoError(t, svc.RemoveNode(ctx, "t1", f.ID, mid.ID))
	stored, _ := svc.Get(ctx, "t1", f.ID)
	assert.Len(t, stored.Nodes, 2)
	assert.Empty(t, stored.Edges)

	err := svc.RemoveNode(ctx, "t1", f.ID, mid.ID)
	assert.ErrorIs(t, err, chatflow.ErrNotFound)
}

func TestFlowService_TenantIsolation(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Private"})

	_, err := svc.Get(ctx, "t2", f.ID)
	assert.ErrorIs(t, err, chatflow.ErrTenantViolation)
	_, err = svc.AddNode(ctx, "t2", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
	assert.ErrorIs(t, err, chatflow.ErrTenantViolation)
	_, _, err = svc.Publish(ctx, "t2", f.ID)
	assert.ErrorIs(t, err, chatflow.ErrTenantViolation)
	assert.ErrorIs(t, svc.Delete(ctx, "t2", f.ID), chatflow.ErrTenantViolation)

	others, err := svc.List(ctx, "t2", "")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestFlowService_Quota(t *testing.T) {
	svc, _ := newService(PlanQuota{MaxFlows: 1, MaxNodesPerFlow: 2})
	ctx := context.Background()

	f, err := svc.Create(ctx, "t1", FlowInput{Name: "One"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "t1", FlowInput{Name: "Two"})
	assert.ErrorIs(t, err, chatflow.ErrQuotaExceeded)
	_, err = svc.Create(ctx, "t2", FlowInput{Name: "Other tenant"})
	assert.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
		require.NoError(t, err)
	}
	_, err = svc.AddNode(ctx, "t1", f.ID, chatflow.NodeTypeTextMessage, chatflow.Position{})
	assert.True(t, errors.Is(err, chatflow.ErrQuotaExceeded))
}

func TestFlowService_UpdateMetaAndReplaceGraph(t *testing.T) {
	svc, _ := newService(PlanQuota{})
	ctx := context.Background()
	f, _ := svc.Create(ctx, "t1", FlowInput{Name: "Old"})

	name, beta := "New", true
	updated, err := svc.UpdateMeta(ctx, "t1", f.ID, MetaPatch{Name: &name, IsBeta: &beta})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.True(t, updated.IsBeta)

	var g chatflow.Graph
	start, _ := g.AddNode(chatflow.NodeTypeStartTrigger, chatflow.Position{})
	text, _ := g.AddNode(chatflow.NodeTypeTextMessage, chatflow.Position{})
	_, err = g.Connect(start.ID, "", text.ID, "")
	require.NoError(t, err)

	replaced, err := svc.ReplaceGraph(ctx, "t1", f.ID, g)
	require.NoError(t, err)
	assert.Len(t, replaced.Nodes, 2)
	assert.Len(t, replaced.Edges, 1)

	issues, err := svc.Validate(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.False(t, validator.HasErrors(issues))
}

func TestPlanQuota(t *testing.T) {
	q := PlanQuota{MaxFlows: 2}
	ctx := context.Background()
	assert.NoError(t, q.CheckFlowCreate(ctx, "t1", 1))
	assert.ErrorIs(t, q.CheckFlowCreate(ctx, "t1", 2), chatflow.ErrQuotaExceeded)
	assert.NoError(t, q.CheckNodeAdd(ctx, "t1", 1000), "zero means unlimited")
}
