package chatflow

import "fmt"

// Descriptor is the editor-facing presentation of a node type.
type Descriptor struct {
	Type        NodeType `json:"type"`
	Label       string   `json:"label"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Description string   `json:"description"`
	MultiOutput bool     `json:"multiOutput"`
}

type registration struct {
	descriptor Descriptor
	defaults   func() Payload
}

var registry = map[NodeType]registration{
	NodeTypeStartTrigger: {
		Descriptor{Label: "Start", Icon: "play", Color: "#22c55e", Description: "Entry point of the flow"},
		func() Payload { return &StartTriggerData{} },
	},
	NodeTypeTextMessage: {
		Descriptor{Label: "Text Message", Icon: "message-square", Color: "#3b82f6", Description: "Send a text message"},
		func() Payload { return &TextMessageData{Text: "Hello! How can I help you?"} },
	},
	NodeTypeMediaMessage: {
		Descriptor{Label: "Media", Icon: "image", Color: "#8b5cf6", Description: "Send an image, video, audio or document"},
		func() Payload { return &MediaMessageData{MediaType: "image"} },
	},
	NodeTypeQuickReplies: {
		Descriptor{Label: "Quick Replies", Icon: "list-checks", Color: "#f59e0b", Description: "Offer up to three reply buttons", MultiOutput: true},
		func() Payload {
			return &QuickRepliesData{ButtonSet{Text: "Choose an option", Buttons: []Button{{Label: "Option 1"}}}}
		},
	},
	NodeTypeListMessage: {
		Descriptor{Label: "List", Icon: "list", Color: "#06b6d4", Description: "Let the contact pick from a list"},
		func() Payload {
			return &ListMessageData{Text: "Pick one of the options", ButtonText: "Options", Rows: []ListRow{{ID: "row-0", Title: "Option 1"}}}
		},
	},
	NodeTypeCondition: {
		Descriptor{Label: "Condition", Icon: "git-branch", Color: "#ef4444", Description: "Branch on the reply or a variable", MultiOutput: true},
		func() Payload { return &ConditionData{Conditions: []ConditionRule{{MatchType: MatchDefault}}} },
	},
	NodeTypeWaitResponse: {
		Descriptor{Label: "Wait for Response", Icon: "hourglass", Color: "#eab308", Description: "Wait for a reply with a timeout", MultiOutput: true},
		func() Payload { return &WaitResponseData{TimeoutSeconds: 300, VariableName: "response"} },
	},
	NodeTypeDelay: {
		Descriptor{Label: "Delay", Icon: "clock", Color: "#64748b", Description: "Pause before the next step"},
		func() Payload { return &DelayData{Seconds: 5} },
	},
	NodeTypeHTTPRequest: {
		Descriptor{Label: "HTTP Request", Icon: "globe", Color: "#0ea5e9", Description: "Call an external API"},
		func() Payload {
			return &HTTPRequestData{Method: "GET", ResponseVariable: "response", TimeoutSeconds: 10}
		},
	},
	NodeTypeSetVariable: {
		Descriptor{Label: "Set Variable", Icon: "variable", Color: "#a855f7", Description: "Store a value for later steps"},
		func() Payload { return &SetVariableData{VariableName: "variable"} },
	},
	NodeTypeHumanTransfer: {
		Descriptor{Label: "Human Transfer", Icon: "user", Color: "#f97316", Description: "Hand the conversation to an agent"},
		func() Payload { return &HumanTransferData{Message: "Connecting you with an agent."} },
	},
	NodeTypeActionButtons: {
		Descriptor{Label: "Action Buttons", Icon: "mouse-pointer-click", Color: "#10b981", Description: "Offer call-to-action buttons", MultiOutput: true},
		func() Payload {
			return &ActionButtonsData{ButtonSet{Text: "What would you like to do?", Buttons: []Button{{Label: "Continue"}}}}
		},
	},
}

// DefaultPayload returns a fresh default payload for t.
func DefaultPayload(t NodeType) (Payload, error) {
	r, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	return r.defaults(), nil
}

// SlotCount returns the number of output slots a node of kind t has with
// payload p. A nil payload counts the default payload.
func SlotCount(t NodeType, p Payload) (int, error) {
	if p == nil {
		var err error
		if p, err = DefaultPayload(t); err != nil {
			return 0, err
		}
	}
	if p.Kind() != t {
		return 0, fmt.Errorf("%w: payload of kind %s on %s node", ErrInvalidPayload, p.Kind(), t)
	}
	return len(p.Slots()), nil
}

// Describe returns the descriptor for t.
func Describe(t NodeType) (Descriptor, bool) {
	r, ok := registry[t]
	if !ok {
		return Descriptor{}, false
	}
	d := r.descriptor
	d.Type = t
	return d, true
}

// Descriptors returns every descriptor in canonical order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(AllNodeTypes))
	for _, t := range AllNodeTypes {
		d, _ := Describe(t)
		out = append(out, d)
	}
	return out
}
