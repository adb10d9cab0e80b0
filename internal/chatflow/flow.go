package chatflow

import (
	"encoding/json"
	"fmt"
	"time"
)

type FlowStatus string

const (
	FlowStatusDraft     FlowStatus = "draft"
	FlowStatusPublished FlowStatus = "published"
)

// Flow is a tenant-owned conversation design. Nodes keep insertion order.
type Flow struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      FlowStatus `json:"status"`
	Graph
	IsBeta    bool      `json:"isBeta"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of f.
func (f *Flow) Clone() *Flow {
	c := *f
	c.Graph = f.Graph.Clone()
	return &c
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one step of a flow. Position has no execution meaning.
type Node struct {
	ID       string
	Type     NodeType
	Position Position
	Data     Payload
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	data := n.Data
	if data == nil {
		var err error
		if data, err = DefaultPayload(n.Type); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Type, Position: n.Position, Data: raw})
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DefaultPayload(raw.Type)
	if err != nil {
		return err
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		data, err = decodePayload(raw.Type, raw.Data)
		if err != nil {
			return fmt.Errorf("node %s: %w", raw.ID, err)
		}
	}
	*n = Node{ID: raw.ID, Type: raw.Type, Position: raw.Position, Data: data}
	return nil
}

// decodePayload decodes JSON into the empty payload for t. Fields absent
// from raw keep their zero value.
func decodePayload(t NodeType, raw []byte) (Payload, error) {
	p, err := DefaultPayload(t)
	if err != nil {
		return nil, err
	}
	p = zeroOf(p)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

func (n Node) clone() Node {
	if n.Data == nil {
		return n
	}
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return n
	}
	p, err := decodePayload(n.Type, raw)
	if err != nil {
		return n
	}
	n.Data = p
	return n
}

// Edge connects an output slot of Source to Target. SourceHandle is empty
// for single-output nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Graph holds the nodes and edges of a flow. It is mutated only through
// the operations in graph.go.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.clone()
	}
	copy(out.Edges, g.Edges)
	return out
}
