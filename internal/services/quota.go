package services

import (
	"context"
	"fmt"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
)

var _ ports.QuotaChecker = PlanQuota{}

// PlanQuota enforces static plan limits. Zero means unlimited.
type PlanQuota struct {
	MaxFlows        int
	MaxNodesPerFlow int
}

func (q PlanQuota) CheckFlowCreate(_ context.Context, tenantID string, existing int) error {
	if q.MaxFlows > 0 && existing >= q.MaxFlows {
		return fmt.Errorf("%w: tenant %s has %d of %d flows", chatflow.ErrQuotaExceeded, tenantID, existing, q.MaxFlows)
	}
	return nil
}

func (q PlanQuota) CheckNodeAdd(_ context.Context, tenantID string, existing int) error {
	if q.MaxNodesPerFlow > 0 && existing >= q.MaxNodesPerFlow {
		return fmt.Errorf("%w: flow already has %d of %d nodes", chatflow.ErrQuotaExceeded, existing, q.MaxNodesPerFlow)
	}
	return nil
}
