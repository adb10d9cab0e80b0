package validator

import (
	"strings"
	"testing"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add(t *testing.T, g *chatflow.Graph, nt chatflow.NodeType) string {
	t.Helper()
	n, err := g.AddNode(nt, chatflow.Position{})
	require.NoError(t, err)
	return n.ID
}

func connect(t *testing.T, g *chatflow.Graph, src, handle, dst string) {
	t.Helper()
	_, err := g.Connect(src, handle, dst, "")
	require.NoError(t, err)
}

func codes(issues []Issue, level Level) []string {
	var out []string
	for _, i := range issues {
		if i.Level == level {
			out = append(out, i.Code)
		}
	}
	return out
}

func TestValidate_StartToText(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	text := add(t, &g, chatflow.NodeTypeTextMessage)
	connect(t, &g, start, "", text)

	issues := Validate(&g)
	assert.Empty(t, issues)
}

func TestValidate_QuickRepliesDeadEnds(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	qr := add(t, &g, chatflow.NodeTypeQuickReplies)
	next := add(t, &g, chatflow.NodeTypeTextMessage)
	require.NoError(t, g.UpdateNodeData(qr, map[string]any{
		"buttons": []any{
			map[string]any{"label": "One"},
			map[string]any{"label": "Two"},
			map[string]any{"label": "Three"},
		},
	}))
	connect(t, &g, start, "", qr)
	connect(t, &g, qr, "button-0", next)

	issues := Validate(&g)
	assert.False(t, HasErrors(issues))
	assert.Equal(t, []string{CodeDeadEnd, CodeDeadEnd}, codes(issues, LevelWarning))
	assert.Contains(t, issues[0].Message, "button-1")
	assert.Contains(t, issues[1].Message, "button-2")
	assert.Equal(t, qr, issues[0].NodeID)
}

func TestValidate_EntryPoints(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		var g chatflow.Graph
		add(t, &g, chatflow.NodeTypeTextMessage)
		issues := Validate(&g)
		require.True(t, HasErrors(issues))
		assert.Equal(t, []string{CodeMissingEntryPoint}, codes(issues, LevelError))
		assert.Equal(t, "missing entry point", issues[0].Message)
	})
	t.Run("multiple", func(t *testing.T) {
		var g chatflow.Graph
		add(t, &g, chatflow.NodeTypeStartTrigger)
		second := add(t, &g, chatflow.NodeTypeStartTrigger)
		issues := Validate(&g)
		errs := Errors(issues)
		require.Len(t, errs, 1)
		assert.Equal(t, CodeMultipleEntryPoints, errs[0].Code)
		assert.Equal(t, second, errs[0].NodeID)
		assert.True(t, strings.HasPrefix(errs[0].Message, "multiple entry points"))
	})
}

func TestValidate_ConditionDefaults(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	cond := add(t, &g, chatflow.NodeTypeCondition)
	connect(t, &g, start, "", cond)
	require.NoError(t, g.UpdateNodeData(cond, map[string]any{
		"conditions": []any{
			map[string]any{"matchType": "contains", "value": "price"},
			map[string]any{"matchType": "contains", "value": "hours"},
		},
	}))

	errs := Errors(Validate(&g))
	require.Len(t, errs, 1)
	assert.Equal(t, "missing_default_rule", errs[0].Code)
	assert.Equal(t, "missing default rule", errs[0].Message)
	assert.Equal(t, cond, errs[0].NodeID)
}

func TestValidate_UnreachableIsWarning(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	text := add(t, &g, chatflow.NodeTypeTextMessage)
	orphan := add(t, &g, chatflow.NodeTypeDelay)
	connect(t, &g, start, "", text)

	issues := Validate(&g)
	assert.False(t, HasErrors(issues))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeUnreachable, issues[0].Code)
	assert.Equal(t, orphan, issues[0].NodeID)
}

func TestValidate_CyclesAllowed(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	ask := add(t, &g, chatflow.NodeTypeTextMessage)
	wait := add(t, &g, chatflow.NodeTypeWaitResponse)
	connect(t, &g, start, "", ask)
	connect(t, &g, ask, "", wait)
	connect(t, &g, wait, chatflow.HandleReceived, ask)
	connect(t, &g, wait, chatflow.HandleTimedOut, ask)

	assert.Empty(t, Validate(&g))
}

func TestValidate_RawGraphCorruption(t *testing.T) {
	g := chatflow.Graph{
		Nodes: []chatflow.Node{
			{ID: "s", Type: chatflow.NodeTypeStartTrigger, Data: &chatflow.StartTriggerData{}},
			{ID: "q", Type: chatflow.NodeTypeQuickReplies, Data: &chatflow.QuickRepliesData{ButtonSet: chatflow.ButtonSet{
				Text:    "Pick",
				Buttons: []chatflow.Button{{Label: "A", TargetNodeID: "ghost"}},
			}}},
			{ID: "t", Type: chatflow.NodeTypeTextMessage, Data: &chatflow.TextMessageData{Text: "hi"}},
		},
		Edges: []chatflow.Edge{
			{ID: "e1", Source: "s", Target: "q"},
			{ID: "e2", Source: "q", SourceHandle: "button-5", Target: "t"},
			{ID: "e3", Source: "q", Target: "missing"},
			{ID: "e4", Source: "t", Target: "t"},
			{ID: "e5", Source: "s", Target: "t"},
		},
	}

	issues := Validate(&g)
	byEdge := map[string]string{}
	for _, i := range Errors(issues) {
		if i.EdgeID != "" {
			byEdge[i.EdgeID] = i.Code
		}
	}
	assert.Equal(t, map[string]string{
		"e2": CodeInvalidHandle,
		"e3": CodeDanglingEdge,
		"e4": CodeSelfLoop,
		"e5": CodeSlotOccupied,
	}, byEdge)
	assert.Contains(t, codes(issues, LevelError), CodeDanglingTarget)
	assert.Contains(t, codes(issues, LevelWarning), CodeDeadEnd)
}

func TestValidate_TargetMismatch(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	cond := add(t, &g, chatflow.NodeTypeCondition)
	a := add(t, &g, chatflow.NodeTypeTextMessage)
	connect(t, &g, start, "", cond)
	connect(t, &g, cond, "condition-0", a)

	node, _ := g.Node(cond)
	node.Data.SetTarget("condition-0", start)

	issues := Validate(&g)
	assert.Equal(t, []string{CodeTargetMismatch}, codes(issues, LevelWarning))
}

func TestValidate_PayloadLimits(t *testing.T) {
	var g chatflow.Graph
	start := add(t, &g, chatflow.NodeTypeStartTrigger)
	text := add(t, &g, chatflow.NodeTypeTextMessage)
	connect(t, &g, start, "", text)
	require.NoError(t, g.UpdateNodeData(text, map[string]any{"text": strings.Repeat("a", 1025)}))

	assert.Equal(t, []string{"text_too_long"}, codes(Validate(&g), LevelError))
}
