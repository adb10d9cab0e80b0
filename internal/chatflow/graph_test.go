package chatflow

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func mustAdd(t *testing.T, g *Graph, nt NodeType) Node {
	t.Helper()
	n, err := g.AddNode(nt, Position{})
	if err != nil {
		t.Fatalf("add %s: %v", nt, err)
	}
	return n
}

func mustConnect(t *testing.T, g *Graph, src, handle, dst string) Edge {
	t.Helper()
	e, err := g.Connect(src, handle, dst, "")
	if err != nil {
		t.Fatalf("connect %s/%s -> %s: %v", src, handle, dst, err)
	}
	return e
}

func threeButtons(t *testing.T, g *Graph, id string) {
	t.Helper()
	err := g.UpdateNodeData(id, map[string]any{
		"buttons": []any{
			map[string]any{"label": "Sales"},
			map[string]any{"label": "Support"},
			map[string]any{"label": "Other"},
		},
	})
	if err != nil {
		t.Fatalf("update buttons: %v", err)
	}
}

func TestAddNode(t *testing.T) {
	var g Graph
	n := mustAdd(t, &g, NodeTypeTextMessage)
	if !strings.HasPrefix(n.ID, "textMessage-") {
		t.Errorf("id: got %q, want textMessage- prefix", n.ID)
	}
	if _, ok := n.Data.(*TextMessageData); !ok {
		t.Fatalf("data: got %T, want *TextMessageData", n.Data)
	}
	other := mustAdd(t, &g, NodeTypeTextMessage)
	if other.ID == n.ID {
		t.Fatal("expected distinct ids")
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes: got %d, want 2", len(g.Nodes))
	}
}

func TestAddNode_UnknownType(t *testing.T) {
	var g Graph
	_, err := g.AddNode("carousel", Position{})
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Fatalf("got %v, want ErrUnknownNodeType", err)
	}
}

func TestConnect_Errors(t *testing.T) {
	var g Graph
	start := mustAdd(t, &g, NodeTypeStartTrigger)
	text := mustAdd(t, &g, NodeTypeTextMessage)
	qr := mustAdd(t, &g, NodeTypeQuickReplies)
	mustConnect(t, &g, start.ID, "", text.ID)

	tests := []struct {
		name             string
		src, handle, dst string
		want             error
	}{
		{"missing source", "nope", "", text.ID, ErrInvalidEndpoint},
		{"missing target", start.ID, "", "nope", ErrInvalidEndpoint},
		{"self loop", text.ID, "", text.ID, ErrSelfLoop},
		{"bad handle", qr.ID, "button-7", text.ID, ErrInvalidHandle},
		{"handle on single output", text.ID, "button-0", qr.ID, ErrInvalidHandle},
		{"single output occupied", start.ID, "", qr.ID, ErrSlotOccupied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(g.Edges)
			_, err := g.Connect(tt.src, tt.handle, tt.dst, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if !IsStructural(err) {
				t.Errorf("expected StructuralError, got %T", err)
			}
			if len(g.Edges) != before {
				t.Errorf("edges changed: %d -> %d", before, len(g.Edges))
			}
		})
	}
}

func TestConnect_SlotExclusivity(t *testing.T) {
	var g Graph
	qr := mustAdd(t, &g, NodeTypeQuickReplies)
	a := mustAdd(t, &g, NodeTypeTextMessage)
	b := mustAdd(t, &g, NodeTypeTextMessage)
	threeButtons(t, &g, qr.ID)

	mustConnect(t, &g, qr.ID, "button-1", a.ID)
	snapshot := g.Clone()

	_, err := g.Connect(qr.ID, "button-1", b.ID, "")
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("got %v, want ErrSlotOccupied", err)
	}
	if len(g.Edges) != len(snapshot.Edges) || g.Edges[0] != snapshot.Edges[0] {
		t.Fatalf("graph changed after rejected connect")
	}
	node, _ := g.Node(qr.ID)
	if got := node.Data.Target("button-1"); got != a.ID {
		t.Errorf("button-1 target: got %q, want %q", got, a.ID)
	}
	// another slot on the same node is still free
	mustConnect(t, &g, qr.ID, "button-2", b.ID)
}

func TestConnect_SetsPayloadTarget(t *testing.T) {
	var g Graph
	wait := mustAdd(t, &g, NodeTypeWaitResponse)
	timeout := mustAdd(t, &g, NodeTypeTextMessage)
	e := mustConnect(t, &g, wait.ID, HandleTimedOut, timeout.ID)

	node, _ := g.Node(wait.ID)
	data := node.Data.(*WaitResponseData)
	if data.TimeoutTargetNodeID != timeout.ID {
		t.Fatalf("timeout target: got %q", data.TimeoutTargetNodeID)
	}
	if err := g.Disconnect(e.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if data.TimeoutTargetNodeID != "" {
		t.Errorf("timeout target not cleared: %q", data.TimeoutTargetNodeID)
	}
	if err := g.Disconnect(e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second disconnect: got %v, want ErrNotFound", err)
	}
}

func TestRemoveNode_Cascade(t *testing.T) {
	var g Graph
	in1 := mustAdd(t, &g, NodeTypeTextMessage)
	in2 := mustAdd(t, &g, NodeTypeCondition)
	hub := mustAdd(t, &g, NodeTypeQuickReplies)
	threeButtons(t, &g, hub.ID)
	outs := []Node{
		mustAdd(t, &g, NodeTypeTextMessage),
		mustAdd(t, &g, NodeTypeTextMessage),
		mustAdd(t, &g, NodeTypeTextMessage),
	}
	mustConnect(t, &g, in1.ID, "", hub.ID)
	mustConnect(t, &g, in2.ID, "condition-0", hub.ID)
	for i, o := range outs {
		mustConnect(t, &g, hub.ID, ButtonHandle(i), o.ID)
	}
	mustConnect(t, &g, outs[0].ID, "", outs[1].ID)

	if err := g.RemoveNode(hub.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := g.Node(hub.ID); ok {
		t.Fatal("node still present")
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges: got %d, want 1 unrelated edge", len(g.Edges))
	}
	cond, _ := g.Node(in2.ID)
	if got := cond.Data.Target("condition-0"); got != "" {
		t.Errorf("condition target not cleared: %q", got)
	}
	if err := g.RemoveNode(hub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: got %v, want ErrNotFound", err)
	}
}

func TestUpdateNodeData_ShallowMerge(t *testing.T) {
	var g Graph
	n := mustAdd(t, &g, NodeTypeTextMessage)
	if err := g.UpdateNodeData(n.ID, map[string]any{"text": "Hi {{name}}"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := g.UpdateNodeData(n.ID, map[string]any{"waitForResponse": true, "typingDelaySeconds": "3"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	node, _ := g.Node(n.ID)
	data := node.Data.(*TextMessageData)
	if data.Text != "Hi {{name}}" || !data.WaitForResponse || data.TypingDelaySeconds != 3 {
		t.Fatalf("merged data: %+v", data)
	}
}

func TestUpdateNodeData_NotFound(t *testing.T) {
	var g Graph
	err := g.UpdateNodeData("missing", map[string]any{"text": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateNodeData_DropsVanishedSlots(t *testing.T) {
	var g Graph
	qr := mustAdd(t, &g, NodeTypeQuickReplies)
	threeButtons(t, &g, qr.ID)
	a := mustAdd(t, &g, NodeTypeTextMessage)
	c := mustAdd(t, &g, NodeTypeTextMessage)
	mustConnect(t, &g, qr.ID, "button-0", a.ID)
	mustConnect(t, &g, qr.ID, "button-2", c.ID)

	err := g.UpdateNodeData(qr.ID, map[string]any{
		"buttons": []any{map[string]any{"label": "Only"}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(g.Edges) != 1 || g.Edges[0].SourceHandle != "button-0" {
		t.Fatalf("edges: %+v", g.Edges)
	}
	node, _ := g.Node(qr.ID)
	data := node.Data.(*QuickRepliesData)
	if len(data.Buttons) != 1 || data.Buttons[0].TargetNodeID != a.ID {
		t.Fatalf("buttons: %+v", data.Buttons)
	}
}

func TestGraph_NoDanglingEdgesAfterRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var g Graph
	for step := 0; step < 500; step++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(g.Nodes) < 2:
			nt := AllNodeTypes[rng.Intn(len(AllNodeTypes))]
			mustAdd(t, &g, nt)
		case op == 1:
			n := g.Nodes[rng.Intn(len(g.Nodes))]
			_ = g.RemoveNode(n.ID)
		case op == 2:
			src := g.Nodes[rng.Intn(len(g.Nodes))]
			dst := g.Nodes[rng.Intn(len(g.Nodes))]
			slots := src.Data.Slots()
			_, _ = g.Connect(src.ID, slots[rng.Intn(len(slots))], dst.ID, "")
		default:
			if len(g.Edges) > 0 {
				_ = g.Disconnect(g.Edges[rng.Intn(len(g.Edges))].ID)
			}
		}

		ids := map[string]bool{}
		for _, n := range g.Nodes {
			ids[n.ID] = true
		}
		slots := map[string]bool{}
		for _, e := range g.Edges {
			if !ids[e.Source] || !ids[e.Target] {
				t.Fatalf("step %d: dangling edge %+v", step, e)
			}
			k := e.Source + "/" + e.SourceHandle
			if slots[k] {
				t.Fatalf("step %d: slot %s has two edges", step, k)
			}
			slots[k] = true
		}
	}
}
