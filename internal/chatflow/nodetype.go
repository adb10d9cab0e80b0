package chatflow

import "fmt"

// NodeType is the kind of a conversational step. The set is closed; a node's
// type never changes after creation.
type NodeType string

const (
	NodeTypeStartTrigger  NodeType = "startTrigger"
	NodeTypeTextMessage   NodeType = "textMessage"
	NodeTypeMediaMessage  NodeType = "mediaMessage"
	NodeTypeQuickReplies  NodeType = "quickReplies"
	NodeTypeListMessage   NodeType = "listMessage"
	NodeTypeCondition     NodeType = "condition"
	NodeTypeWaitResponse  NodeType = "waitResponse"
	NodeTypeDelay         NodeType = "delay"
	NodeTypeHTTPRequest   NodeType = "httpRequest"
	NodeTypeSetVariable   NodeType = "setVariable"
	NodeTypeHumanTransfer NodeType = "humanTransfer"
	NodeTypeActionButtons NodeType = "actionButtons"
)

// AllNodeTypes lists every node type in canonical order. The order is also
// the tie-break order used when ranking suggestions.
var AllNodeTypes = []NodeType{
	NodeTypeStartTrigger,
	NodeTypeTextMessage,
	NodeTypeMediaMessage,
	NodeTypeQuickReplies,
	NodeTypeListMessage,
	NodeTypeCondition,
	NodeTypeWaitResponse,
	NodeTypeDelay,
	NodeTypeHTTPRequest,
	NodeTypeSetVariable,
	NodeTypeHumanTransfer,
	NodeTypeActionButtons,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// ParseNodeType converts a raw string into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownNodeType, s)
	}
	return t, nil
}
