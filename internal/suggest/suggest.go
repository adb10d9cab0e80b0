// Package suggest ranks the node types an author is likely to add next.
package suggest

import (
	"fmt"
	"sort"

	"github.com/soochol/chatflow/internal/chatflow"
)

// MaxSuggestions is the length cap of a suggestion list.
const MaxSuggestions = 3

type Suggestion struct {
	NodeType chatflow.NodeType `json:"nodeType"`
	Rank     int               `json:"rank"`
}

type weighted struct {
	nodeType chatflow.NodeType
	priority int
}

// base is ordered by descending priority; the order breaks ties.
var base = []weighted{
	{chatflow.NodeTypeTextMessage, 10},
	{chatflow.NodeTypeQuickReplies, 9},
	{chatflow.NodeTypeCondition, 8},
	{chatflow.NodeTypeWaitResponse, 7},
	{chatflow.NodeTypeMediaMessage, 6},
	{chatflow.NodeTypeActionButtons, 6},
	{chatflow.NodeTypeListMessage, 5},
	{chatflow.NodeTypeSetVariable, 5},
	{chatflow.NodeTypeDelay, 4},
	{chatflow.NodeTypeHTTPRequest, 4},
	{chatflow.NodeTypeHumanTransfer, 3},
}

var adjustments = map[chatflow.NodeType]map[chatflow.NodeType]int{
	chatflow.NodeTypeStartTrigger: {
		chatflow.NodeTypeTextMessage:  5,
		chatflow.NodeTypeQuickReplies: 2,
		chatflow.NodeTypeMediaMessage: 1,
	},
	chatflow.NodeTypeTextMessage: {
		chatflow.NodeTypeQuickReplies:  4,
		chatflow.NodeTypeWaitResponse:  4,
		chatflow.NodeTypeActionButtons: 2,
		chatflow.NodeTypeTextMessage:   -5,
	},
	chatflow.NodeTypeMediaMessage: {
		chatflow.NodeTypeTextMessage:  3,
		chatflow.NodeTypeQuickReplies: 2,
		chatflow.NodeTypeMediaMessage: -3,
	},
	chatflow.NodeTypeQuickReplies: {
		chatflow.NodeTypeTextMessage:   4,
		chatflow.NodeTypeCondition:     2,
		chatflow.NodeTypeQuickReplies:  -4,
		chatflow.NodeTypeActionButtons: -4,
	},
	chatflow.NodeTypeActionButtons: {
		chatflow.NodeTypeTextMessage:   4,
		chatflow.NodeTypeCondition:     2,
		chatflow.NodeTypeQuickReplies:  -4,
		chatflow.NodeTypeActionButtons: -4,
	},
	chatflow.NodeTypeListMessage: {
		chatflow.NodeTypeCondition:   4,
		chatflow.NodeTypeTextMessage: 3,
		chatflow.NodeTypeListMessage: -4,
	},
	chatflow.NodeTypeCondition: {
		chatflow.NodeTypeTextMessage: 4,
		chatflow.NodeTypeSetVariable: 2,
		chatflow.NodeTypeCondition:   -3,
	},
	chatflow.NodeTypeWaitResponse: {
		chatflow.NodeTypeCondition:    6,
		chatflow.NodeTypeSetVariable:  3,
		chatflow.NodeTypeWaitResponse: -5,
	},
	chatflow.NodeTypeDelay: {
		chatflow.NodeTypeTextMessage: 4,
		chatflow.NodeTypeDelay:       -5,
	},
	chatflow.NodeTypeHTTPRequest: {
		chatflow.NodeTypeCondition:   5,
		chatflow.NodeTypeSetVariable: 3,
		chatflow.NodeTypeHTTPRequest: -3,
	},
	chatflow.NodeTypeSetVariable: {
		chatflow.NodeTypeCondition:   3,
		chatflow.NodeTypeHTTPRequest: 2,
		chatflow.NodeTypeSetVariable: -3,
	},
	chatflow.NodeTypeHumanTransfer: {
		chatflow.NodeTypeTextMessage: 1,
	},
}

// Suggest returns up to MaxSuggestions node types to follow a node of type
// parent, best first. It is a pure function of parent.
func Suggest(parent chatflow.NodeType) ([]Suggestion, error) {
	if !parent.Valid() {
		return nil, fmt.Errorf("%w: %q", chatflow.ErrUnknownNodeType, parent)
	}
	adj := adjustments[parent]
	scored := make([]weighted, len(base))
	for i, b := range base {
		scored[i] = weighted{b.nodeType, b.priority + adj[b.nodeType]}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].priority > scored[j].priority
	})

	n := min(MaxSuggestions, len(scored))
	out := make([]Suggestion, n)
	for i := range n {
		out[i] = Suggestion{NodeType: scored[i].nodeType, Rank: i + 1}
	}
	return out, nil
}
