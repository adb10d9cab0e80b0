// Package validator checks the invariants a flow must satisfy before it can
// be published. Issues are returned as data; nothing here fails fast.
package validator

import (
	"fmt"
	"strings"

	"github.com/soochol/chatflow/internal/chatflow"
)

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Issue codes.
const (
	CodeMissingEntryPoint   = "missing_entry_point"
	CodeMultipleEntryPoints = "multiple_entry_points"
	CodeDuplicateNodeID     = "duplicate_node_id"
	CodeDuplicateEdgeID     = "duplicate_edge_id"
	CodeDanglingEdge        = "dangling_edge"
	CodeSelfLoop            = "self_loop"
	CodeInvalidHandle       = "invalid_handle"
	CodeSlotOccupied        = "slot_occupied"
	CodeDanglingTarget      = "dangling_target"
	CodeTargetMismatch      = "target_mismatch"
	CodeUnreachable         = "unreachable"
	CodeDeadEnd             = "dead_end"
	CodeInvalidPayload      = "invalid_payload"
)

type Issue struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	id := i.NodeID
	if id == "" {
		id = i.EdgeID
	}
	if id == "" {
		return fmt.Sprintf("%s: %s", i.Level, i.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", i.Level, id, i.Message)
}

// Errors returns the error-level subset of issues, preserving order.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Level == LevelError {
			out = append(out, i)
		}
	}
	return out
}

// HasErrors reports whether any issue blocks publishing.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Level == LevelError {
			return true
		}
	}
	return false
}

type report struct {
	issues []Issue
}

func (r *report) nodeErr(code, nodeID, format string, args ...any) {
	r.issues = append(r.issues, Issue{Level: LevelError, Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

func (r *report) nodeWarn(code, nodeID, format string, args ...any) {
	r.issues = append(r.issues, Issue{Level: LevelWarning, Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

func (r *report) edgeErr(code, edgeID, format string, args ...any) {
	r.issues = append(r.issues, Issue{Level: LevelError, Code: code, EdgeID: edgeID, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every rule against g and returns the issues in a stable
// order: graph-wide rules first, then edges, then nodes in insertion order.
// Cycles are allowed.
func Validate(g *chatflow.Graph) []Issue {
	r := &report{}
	nodes := make(map[string]*chatflow.Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if _, dup := nodes[n.ID]; dup {
			r.nodeErr(CodeDuplicateNodeID, n.ID, "node id %q is used more than once", n.ID)
			continue
		}
		nodes[n.ID] = n
	}

	starts := g.StartNodes()
	switch len(starts) {
	case 0:
		r.issues = append(r.issues, Issue{Level: LevelError, Code: CodeMissingEntryPoint, Message: "missing entry point"})
	case 1:
	default:
		ids := make([]string, len(starts))
		for i, s := range starts {
			ids[i] = s.ID
		}
		r.nodeErr(CodeMultipleEntryPoints, starts[1].ID, "multiple entry points: %s", strings.Join(ids, ", "))
	}

	slots := checkEdges(r, g, nodes)
	checkNodes(r, g, nodes, slots)
	if len(starts) > 0 {
		checkReachability(r, g, starts)
	}
	return r.issues
}

type slotKey struct{ node, handle string }

func checkEdges(r *report, g *chatflow.Graph, nodes map[string]*chatflow.Node) map[slotKey]chatflow.Edge {
	seen := make(map[string]bool, len(g.Edges))
	slots := make(map[slotKey]chatflow.Edge, len(g.Edges))
	for _, e := range g.Edges {
		if seen[e.ID] {
			r.edgeErr(CodeDuplicateEdgeID, e.ID, "edge id %q is used more than once", e.ID)
			continue
		}
		seen[e.ID] = true

		src, srcOK := nodes[e.Source]
		_, dstOK := nodes[e.Target]
		switch {
		case !srcOK:
			r.edgeErr(CodeDanglingEdge, e.ID, "edge source %q does not exist", e.Source)
			continue
		case !dstOK:
			r.edgeErr(CodeDanglingEdge, e.ID, "edge target %q does not exist", e.Target)
			continue
		case e.Source == e.Target:
			r.edgeErr(CodeSelfLoop, e.ID, "edge connects node %q to itself", e.Source)
			continue
		}
		if !chatflow.HasSlot(src.Data, e.SourceHandle) {
			r.edgeErr(CodeInvalidHandle, e.ID, "source handle %q is not an output of %s node %q", e.SourceHandle, src.Type, src.ID)
			continue
		}
		k := slotKey{e.Source, e.SourceHandle}
		if prev, taken := slots[k]; taken {
			r.edgeErr(CodeSlotOccupied, e.ID, "output %s of node %q already connected by edge %q", slotName(e.SourceHandle), e.Source, prev.ID)
			continue
		}
		slots[k] = e
	}
	return slots
}

func checkNodes(r *report, g *chatflow.Graph, nodes map[string]*chatflow.Node, slots map[slotKey]chatflow.Edge) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Data == nil || n.Data.Kind() != n.Type {
			r.nodeErr(CodeInvalidPayload, n.ID, "payload does not match node type %s", n.Type)
			continue
		}
		for _, p := range n.Data.Problems() {
			r.nodeErr(p.Code, n.ID, "%s", p.Message)
		}

		handles := n.Data.Slots()
		multi := len(handles) > 1 || (len(handles) == 1 && handles[0] != "")
		for _, h := range handles {
			edge, connected := slots[slotKey{n.ID, h}]
			if target := n.Data.Target(h); target != "" {
				switch {
				case nodes[target] == nil:
					r.nodeErr(CodeDanglingTarget, n.ID, "output %s points at missing node %q", slotName(h), target)
				case !connected || edge.Target != target:
					r.nodeWarn(CodeTargetMismatch, n.ID, "output %s target %q has no matching edge", slotName(h), target)
				}
			}
			if multi && !connected {
				r.nodeWarn(CodeDeadEnd, n.ID, "dead end: output %s has no outgoing connection", slotName(h))
			}
		}
	}
}

func checkReachability(r *report, g *chatflow.Graph, starts []*chatflow.Node) {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	visited := make(map[string]bool, len(g.Nodes))
	queue := make([]string, 0, len(g.Nodes))
	for _, s := range starts {
		visited[s.ID] = true
		queue = append(queue, s.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, n := range g.Nodes {
		if n.Type == chatflow.NodeTypeStartTrigger || visited[n.ID] {
			continue
		}
		r.nodeWarn(CodeUnreachable, n.ID, "node is not reachable from the entry point")
	}
}

func slotName(handle string) string {
	if handle == "" {
		return "default"
	}
	return handle
}
