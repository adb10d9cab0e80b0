package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soochol/chatflow/internal/chatflow"
)

const flowColumns = `id, tenant_id, name, description, status, nodes, edges, is_beta, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(s rowScanner) (*chatflow.Flow, error) {
	var f chatflow.Flow
	var nodesJSON, edgesJSON []byte
	var status string
	if err := s.Scan(&f.ID, &f.TenantID, &f.Name, &f.Description, &status, &nodesJSON, &edgesJSON, &f.IsBeta, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Status = chatflow.FlowStatus(status)
	if err := json.Unmarshal(nodesJSON, &f.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes of %s: %w", f.ID, err)
	}
	if err := json.Unmarshal(edgesJSON, &f.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges of %s: %w", f.ID, err)
	}
	return &f, nil
}

func marshalGraph(f *chatflow.Flow) (nodes, edges string, err error) {
	ns := f.Nodes
	if ns == nil {
		ns = []chatflow.Node{}
	}
	es := f.Edges
	if es == nil {
		es = []chatflow.Edge{}
	}
	nb, err := json.Marshal(ns)
	if err != nil {
		return "", "", fmt.Errorf("marshal nodes: %w", err)
	}
	eb, err := json.Marshal(es)
	if err != nil {
		return "", "", fmt.Errorf("marshal edges: %w", err)
	}
	return string(nb), string(eb), nil
}

// CreateFlow stores a new flow.
func (d *DB) CreateFlow(ctx context.Context, f *chatflow.Flow) error {
	nodes, edges, err := marshalGraph(f)
	if err != nil {
		return err
	}
	_, err = d.Pool.ExecContext(ctx, d.rebind(
		`INSERT INTO flows (`+flowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.TenantID, f.Name, f.Description, string(f.Status), nodes, edges, f.IsBeta, f.CreatedAt.UTC(), f.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// GetFlow retrieves a flow owned by tenantID.
func (d *DB) GetFlow(ctx context.Context, tenantID, id string) (*chatflow.Flow, error) {
	row := d.Pool.QueryRowContext(ctx, d.rebind(`SELECT `+flowColumns+` FROM flows WHERE id = ?`), id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: flow %s", chatflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	if f.TenantID != tenantID {
		return nil, fmt.Errorf("%w: flow %s requested by tenant %s", chatflow.ErrTenantViolation, id, tenantID)
	}
	return f, nil
}

// ListFlows returns a tenant's flows, most recently updated first. An
// empty status lists every flow.
func (d *DB) ListFlows(ctx context.Context, tenantID string, status chatflow.FlowStatus) ([]*chatflow.Flow, error) {
	q := `SELECT ` + flowColumns + ` FROM flows WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY updated_at DESC`

	rows, err := d.Pool.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var result []*chatflow.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// CountFlows returns how many flows a tenant owns.
func (d *DB) CountFlows(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM flows WHERE tenant_id = ?`), tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flows: %w", err)
	}
	return n, nil
}

// UpdateFlow overwrites a flow. Last write wins.
func (d *DB) UpdateFlow(ctx context.Context, f *chatflow.Flow) error {
	nodes, edges, err := marshalGraph(f)
	if err != nil {
		return err
	}
	res, err := d.Pool.ExecContext(ctx, d.rebind(
		`UPDATE flows SET name = ?, description = ?, status = ?, nodes = ?, edges = ?, is_beta = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`),
		f.Name, f.Description, string(f.Status), nodes, edges, f.IsBeta, f.UpdatedAt.UTC(), f.ID, f.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return d.missOrViolation(ctx, f.TenantID, f.ID)
	}
	return nil
}

// DeleteFlow removes a flow owned by tenantID.
func (d *DB) DeleteFlow(ctx context.Context, tenantID, id string) error {
	res, err := d.Pool.ExecContext(ctx, d.rebind(`DELETE FROM flows WHERE id = ? AND tenant_id = ?`), id, tenantID)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return d.missOrViolation(ctx, tenantID, id)
	}
	return nil
}

// missOrViolation explains why a tenant-scoped write matched no rows.
func (d *DB) missOrViolation(ctx context.Context, tenantID, id string) error {
	var owner string
	err := d.Pool.QueryRowContext(ctx, d.rebind(`SELECT tenant_id FROM flows WHERE id = ?`), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: flow %s", chatflow.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lookup flow owner: %w", err)
	}
	return fmt.Errorf("%w: flow %s requested by tenant %s", chatflow.ErrTenantViolation, id, tenantID)
}
