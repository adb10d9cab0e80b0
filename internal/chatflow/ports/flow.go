package ports

import (
	"context"

	"github.com/soochol/chatflow/internal/chatflow"
)

// FlowSource is the read side of flow storage the runtime routes against.
type FlowSource interface {
	GetFlow(ctx context.Context, tenantID, flowID string) (*chatflow.Flow, error)
	PublishedFlows(ctx context.Context, tenantID string) ([]*chatflow.Flow, error)
}

// QuotaChecker consults plan limits before a tenant grows its flows.
// Implementations return an error wrapping chatflow.ErrQuotaExceeded.
type QuotaChecker interface {
	CheckFlowCreate(ctx context.Context, tenantID string, existing int) error
	CheckNodeAdd(ctx context.Context, tenantID string, existing int) error
}
