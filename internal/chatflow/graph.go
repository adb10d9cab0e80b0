package chatflow

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

func zeroOf(p Payload) Payload {
	return reflect.New(reflect.TypeOf(p).Elem()).Interface().(Payload)
}

func (g *Graph) nodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Graph) edgeIndex(id string) int {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	i := g.nodeIndex(id)
	if i < 0 {
		return nil, false
	}
	return &g.Nodes[i], true
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	i := g.edgeIndex(id)
	if i < 0 {
		return nil, false
	}
	return &g.Edges[i], true
}

// EdgeFrom returns the outgoing edge occupying a source slot.
func (g *Graph) EdgeFrom(nodeID, handle string) (*Edge, bool) {
	for i := range g.Edges {
		if g.Edges[i].Source == nodeID && g.Edges[i].SourceHandle == handle {
			return &g.Edges[i], true
		}
	}
	return nil, false
}

// StartNodes returns every startTrigger node in insertion order.
func (g *Graph) StartNodes() []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeStartTrigger {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// AddNode creates a node of type t seeded with its default payload.
func (g *Graph) AddNode(t NodeType, pos Position) (Node, error) {
	data, err := DefaultPayload(t)
	if err != nil {
		return Node{}, err
	}
	id := GenerateID(string(t))
	for g.nodeIndex(id) >= 0 {
		id = GenerateID(string(t))
	}
	n := Node{ID: id, Type: t, Position: pos, Data: data}
	g.Nodes = append(g.Nodes, n)
	return n, nil
}

// MoveNode updates the editor position of a node.
func (g *Graph) MoveNode(id string, pos Position) error {
	n, ok := g.Node(id)
	if !ok {
		return structural("move node", id, ErrNotFound)
	}
	n.Position = pos
	return nil
}

// UpdateNodeData shallow-merges partial into the node's payload: each
// top-level key replaces the existing field wholesale. Edges leaving slots
// that no longer exist are removed, and slot targets are resynchronised
// from the remaining edges.
func (g *Graph) UpdateNodeData(id string, partial map[string]any) error {
	n, ok := g.Node(id)
	if !ok {
		return structural("update node", id, ErrNotFound)
	}
	merged, err := mergePayload(n.Data, partial)
	if err != nil {
		return structural("update node", id, err)
	}
	n.Data = merged

	keep := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source == id && !HasSlot(merged, e.SourceHandle) {
			continue
		}
		keep = append(keep, e)
	}
	g.Edges = keep
	g.syncTargets(n)
	return nil
}

func mergePayload(current Payload, partial map[string]any) (Payload, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for k, v := range partial {
		fields[k] = v
	}

	out := zeroOf(current)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// syncTargets rewrites the payload targets of n from its outgoing edges.
func (g *Graph) syncTargets(n *Node) {
	for _, h := range n.Data.Slots() {
		target := ""
		if e, ok := g.EdgeFrom(n.ID, h); ok {
			target = e.Target
		}
		n.Data.SetTarget(h, target)
	}
}

// RemoveNode deletes a node together with every edge touching it, and
// clears payload targets that pointed at it.
func (g *Graph) RemoveNode(id string) error {
	i := g.nodeIndex(id)
	if i < 0 {
		return structural("remove node", id, ErrNotFound)
	}
	g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)

	keep := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			continue
		}
		keep = append(keep, e)
	}
	g.Edges = keep

	for j := range g.Nodes {
		p := g.Nodes[j].Data
		for _, h := range p.Slots() {
			if p.Target(h) == id {
				p.SetTarget(h, "")
			}
		}
	}
	return nil
}

// Connect adds an edge from a source slot to a target node. A slot holds at
// most one edge, for single-output kinds as well.
func (g *Graph) Connect(sourceID, sourceHandle, targetID, targetHandle string) (Edge, error) {
	src, ok := g.Node(sourceID)
	if !ok {
		return Edge{}, structural("connect", sourceID, ErrInvalidEndpoint)
	}
	if _, ok := g.Node(targetID); !ok {
		return Edge{}, structural("connect", targetID, ErrInvalidEndpoint)
	}
	if sourceID == targetID {
		return Edge{}, structural("connect", sourceID, ErrSelfLoop)
	}
	if !HasSlot(src.Data, sourceHandle) {
		return Edge{}, structural("connect", sourceID+"/"+sourceHandle, ErrInvalidHandle)
	}
	if _, taken := g.EdgeFrom(sourceID, sourceHandle); taken {
		return Edge{}, structural("connect", sourceID+"/"+sourceHandle, ErrSlotOccupied)
	}

	e := Edge{
		ID:           GenerateID("edge"),
		Source:       sourceID,
		Target:       targetID,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	}
	g.Edges = append(g.Edges, e)
	src.Data.SetTarget(sourceHandle, targetID)
	return e, nil
}

// Disconnect removes an edge and clears the slot target it set.
func (g *Graph) Disconnect(edgeID string) error {
	i := g.edgeIndex(edgeID)
	if i < 0 {
		return structural("disconnect", edgeID, ErrNotFound)
	}
	e := g.Edges[i]
	g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
	if src, ok := g.Node(e.Source); ok && src.Data.Target(e.SourceHandle) == e.Target {
		src.Data.SetTarget(e.SourceHandle, "")
	}
	return nil
}

// LabelEdge sets the display label of an edge.
func (g *Graph) LabelEdge(edgeID, label string) error {
	e, ok := g.Edge(edgeID)
	if !ok {
		return structural("label edge", edgeID, ErrNotFound)
	}
	e.Label = label
	return nil
}
