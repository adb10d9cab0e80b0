package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
	"github.com/soochol/chatflow/internal/repository"
	"github.com/soochol/chatflow/internal/validator"
)

// Compile-time assertion: FlowService feeds the runtime.
var _ ports.FlowSource = (*FlowService)(nil)

// FlowService owns the tenant-scoped editing and lifecycle of flows. Every
// mutation loads the flow, applies one graph operation and persists the
// result; a rejected operation leaves storage untouched.
type FlowService struct {
	repo   repository.FlowRepository
	quota  ports.QuotaChecker
	events ports.EventPublisher
	now    func() time.Time
}

// NewFlowService creates a FlowService. quota and events may be nil.
func NewFlowService(repo repository.FlowRepository, quota ports.QuotaChecker, events ports.EventPublisher) *FlowService {
	return &FlowService{repo: repo, quota: quota, events: events, now: time.Now}
}

// FlowInput carries the editable metadata of a new flow.
type FlowInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsBeta      bool            `json:"isBeta"`
	Graph       *chatflow.Graph `json:"graph,omitempty"`
}

// MetaPatch updates flow metadata. Nil fields are left unchanged.
type MetaPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsBeta      *bool   `json:"isBeta,omitempty"`
}

// ConnectRequest describes a new edge.
type ConnectRequest struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

func (s *FlowService) Create(ctx context.Context, tenantID string, in FlowInput) (*chatflow.Flow, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: flow name is required", ErrInvalidInput)
	}
	if s.quota != nil {
		n, err := s.repo.Count(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if err := s.quota.CheckFlowCreate(ctx, tenantID, n); err != nil {
			return nil, err
		}
	}

	now := s.now()
	f := &chatflow.Flow{
		ID:          chatflow.GenerateID("flow"),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Status:      chatflow.FlowStatusDraft,
		IsBeta:      in.IsBeta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Graph != nil {
		if err := s.checkNodeQuota(ctx, tenantID, len(in.Graph.Nodes)-1); err != nil {
			return nil, err
		}
		f.Graph = in.Graph.Clone()
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	slog.Debug("flow created", "tenant", tenantID, "flow", f.ID)
	return f, nil
}

func (s *FlowService) Get(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns a tenant's flows; an empty status lists all of them.
func (s *FlowService) List(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error) {
	return s.repo.List(ctx, tenantID, status)
}

func (s *FlowService) Delete(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// GetFlow implements ports.FlowSource.
func (s *FlowService) GetFlow(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// PublishedFlows implements ports.FlowSource.
func (s *FlowService) PublishedFlows(ctx context.Context, tenantID string) ([]*chatflow.Flow, error) {
	return s.repo.List(ctx, tenantID, chatflow.FlowStatusPublished)
}

// mutate applies fn to a fresh copy of the flow and persists it when fn
// succeeds.
func (s *FlowService) mutate(ctx context.Context, tenantID, id string, fn func(f *chatflow.Flow) error) (*chatflow.Flow, error) {
	f, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return nil, err
	}
	f.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FlowService) UpdateMeta(ctx context.Context, tenantID, id string, patch MetaPatch) (*chatflow.Flow, error) {
	return s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return fmt.Errorf("%w: flow name is required", ErrInvalidInput)
			}
			f.Name = *patch.Name
		}
		if patch.Description != nil {
			f.Description = *patch.Description
		}
		if patch.IsBeta != nil {
			f.IsBeta = *patch.IsBeta
		}
		return nil
	})
}

// ReplaceGraph overwrites the whole graph, as the editor does on save.
// Structural problems in the new graph are reported by Validate, not here.
func (s *FlowService) ReplaceGraph(ctx context.Context, tenantID, id string, g chatflow.Graph) (*chatflow.Flow, error) {
	return s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		if len(g.Nodes) > len(f.Nodes) {
			if err := s.checkNodeQuota(ctx, tenantID, len(g.Nodes)-1); err != nil {
				return err
			}
		}
		f.Graph = g.Clone()
		return nil
	})
}

func (s *FlowService) checkNodeQuota(ctx context.Context, tenantID string, existing int) error {
	if s.quota == nil || existing < 0 {
		return nil
	}
	return s.quota.CheckNodeAdd(ctx, tenantID, existing)
}

func (s *FlowService) AddNode(ctx context.Context, tenantID, id string, t chatflow.NodeType, pos chatflow.Position) (chatflow.Node, error) {
	return s.AddNodeWithData(ctx, tenantID, id, t, pos, nil)
}

// AddNodeWithData adds a node and merges data into its default payload in
// one edit. Rejected data leaves the flow unchanged.
func (s *FlowService) AddNodeWithData(ctx context.Context, tenantID, id string, t chatflow.NodeType, pos chatflow.Position, data map[string]any) (chatflow.Node, error) {
	var node chatflow.Node
	_, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		if err := s.checkNodeQuota(ctx, tenantID, len(f.Nodes)); err != nil {
			return err
		}
		n, err := f.AddNode(t, pos)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := f.UpdateNodeData(n.ID, data); err != nil {
				return err
			}
		}
		stored, _ := f.Node(n.ID)
		node = *stored
		return nil
	})
	return node, err
}

// NodeEdit is a partial node update; nil fields are left alone.
type NodeEdit struct {
	Position *chatflow.Position
	Data     map[string]any
}

// EditNode moves a node and merges data into its payload in one edit.
// Either part failing rejects both.
func (s *FlowService) EditNode(ctx context.Context, tenantID, id, nodeID string, edit NodeEdit) (chatflow.Node, error) {
	var node chatflow.Node
	_, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		if edit.Position != nil {
			if err := f.MoveNode(nodeID, *edit.Position); err != nil {
				return err
			}
		}
		if len(edit.Data) > 0 {
			if err := f.UpdateNodeData(nodeID, edit.Data); err != nil {
				return err
			}
		}
		n, ok := f.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: node %s", chatflow.ErrNotFound, nodeID)
		}
		node = *n
		return nil
	})
	return node, err
}

func (s *FlowService) UpdateNodeData(ctx context.Context, tenantID, id, nodeID string, partial map[string]any) (chatflow.Node, error) {
	return s.EditNode(ctx, tenantID, id, nodeID, NodeEdit{Data: partial})
}

func (s *FlowService) MoveNode(ctx context.Context, tenantID, id, nodeID string, pos chatflow.Position) error {
	_, err := s.EditNode(ctx, tenantID, id, nodeID, NodeEdit{Position: &pos})
	return err
}

func (s *FlowService) RemoveNode(ctx context.Context, tenantID, id, nodeID string) error {
	_, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		return f.RemoveNode(nodeID)
	})
	return err
}

func (s *FlowService) Connect(ctx context.Context, tenantID, id string, req ConnectRequest) (chatflow.Edge, error) {
	var edge chatflow.Edge
	_, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		e, err := f.Connect(req.Source, req.SourceHandle, req.Target, req.TargetHandle)
		if err != nil {
			return err
		}
		if req.Label != "" {
			if err := f.LabelEdge(e.ID, req.Label); err != nil {
				return err
			}
			e.Label = req.Label
		}
		edge = e
		return nil
	})
	return edge, err
}

func (s *FlowService) Disconnect(ctx context.Context, tenantID, id, edgeID string) error {
	_, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		return f.Disconnect(edgeID)
	})
	return err
}

// Validate returns every issue in the stored flow.
func (s *FlowService) Validate(ctx context.Context, tenantID, id string) ([]validator.Issue, error) {
	f, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return validator.Validate(&f.Graph), nil
}

// Publish moves a flow to published. It is refused with a *PublishError
// when validation reports any error; warnings are returned alongside the
// published flow.
func (s *FlowService) Publish(ctx context.Context, tenantID, id string) (*chatflow.Flow, []validator.Issue, error) {
	var issues []validator.Issue
	f, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		issues = validator.Validate(&f.Graph)
		if errs := validator.Errors(issues); len(errs) > 0 {
			return &PublishError{FlowID: f.ID, Issues: errs}
		}
		f.Status = chatflow.FlowStatusPublished
		return nil
	})
	if pe, ok := AsPublishError(err); ok {
		slog.Info("publish refused", "tenant", tenantID, "flow", id, "errors", len(pe.Issues))
		s.emit(chatflow.Event{Type: chatflow.EventPublishRefused, TenantID: tenantID, FlowID: id,
			Payload: map[string]any{"errors": len(pe.Issues)}})
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, err
	}
	slog.Info("flow published", "tenant", tenantID, "flow", id, "warnings", len(issues))
	s.emit(chatflow.Event{Type: chatflow.EventFlowPublished, TenantID: tenantID, FlowID: id})
	return f, issues, nil
}

// Unpublish moves a flow back to draft. It is always allowed.
func (s *FlowService) Unpublish(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	f, err := s.mutate(ctx, tenantID, id, func(f *chatflow.Flow) error {
		f.Status = chatflow.FlowStatusDraft
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("flow unpublished", "tenant", tenantID, "flow", id)
	s.emit(chatflow.Event{Type: chatflow.EventFlowUnpublished, TenantID: tenantID, FlowID: id})
	return f, nil
}

func (s *FlowService) emit(ev chatflow.Event) {
	if s.events == nil {
		return
	}
	ev.Timestamp = s.now()
	s.events.Publish(ev)
}
