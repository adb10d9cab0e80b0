package chatflow

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxTextLength   = 1024
	MaxButtonLabel  = 20
	MaxButtons      = 3
	MaxListRows     = 10
	MaxListRowTitle = 24
)

// Handles for the two outputs of a waitResponse node.
const (
	HandleReceived = "received"
	HandleTimedOut = "timedout"
)

// Payload is the kind-specific data carried by a node. Every node type has
// exactly one payload struct implementing it, so a new kind cannot be added
// without answering each of these questions for it.
type Payload interface {
	Kind() NodeType
	// Slots returns the output handles in declaration order. Single-output
	// kinds expose one slot with the empty handle.
	Slots() []string
	// Target returns the node id recorded in the payload for a slot, if any.
	Target(handle string) string
	// SetTarget records nodeID for the slot. It reports false when the
	// handle does not name a slot.
	SetTarget(handle, nodeID string) bool
	// Problems lists payload-level constraint violations.
	Problems() []Problem
}

// Problem is a payload constraint violation.
type Problem struct {
	Code    string
	Message string
}

// singleOutput provides the slot behaviour shared by one-in/one-out kinds.
type singleOutput struct{}

func (singleOutput) Slots() []string { return []string{""} }

func (singleOutput) Target(string) string { return "" }

func (singleOutput) SetTarget(handle, _ string) bool { return handle == "" }

// HasSlot reports whether handle names an output of p.
func HasSlot(p Payload, handle string) bool {
	for _, s := range p.Slots() {
		if s == handle {
			return true
		}
	}
	return false
}

func ButtonHandle(i int) string    { return "button-" + strconv.Itoa(i) }
func ConditionHandle(i int) string { return "condition-" + strconv.Itoa(i) }

func indexedHandle(handle, prefix string, n int) (int, bool) {
	rest, ok := strings.CutPrefix(handle, prefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || i >= n || strconv.Itoa(i) != rest {
		return 0, false
	}
	return i, true
}

func tooLong(s string, n int) bool { return utf8.RuneCountInString(s) > n }

// --- startTrigger ---

type StartTriggerData struct {
	singleOutput
	// Keywords restricts which inbound messages start a conversation.
	// Empty means any message.
	Keywords []string `json:"keywords,omitempty"`
}

func (*StartTriggerData) Kind() NodeType { return NodeTypeStartTrigger }

func (d *StartTriggerData) Problems() []Problem { return nil }

// Matches reports whether text starts a conversation.
func (d *StartTriggerData) Matches(text string) bool {
	if len(d.Keywords) == 0 {
		return true
	}
	text = strings.TrimSpace(text)
	for _, k := range d.Keywords {
		if strings.EqualFold(strings.TrimSpace(k), text) {
			return true
		}
	}
	return false
}

// --- textMessage ---

type TextMessageData struct {
	singleOutput
	Text               string `json:"text"`
	WaitForResponse    bool   `json:"waitForResponse"`
	TypingDelaySeconds int    `json:"typingDelaySeconds"`
}

func (*TextMessageData) Kind() NodeType { return NodeTypeTextMessage }

func (d *TextMessageData) Problems() []Problem {
	var ps []Problem
	if strings.TrimSpace(d.Text) == "" {
		ps = append(ps, Problem{"empty_text", "message text is empty"})
	}
	if tooLong(d.Text, MaxTextLength) {
		ps = append(ps, Problem{"text_too_long", fmt.Sprintf("message text exceeds %d characters", MaxTextLength)})
	}
	if d.TypingDelaySeconds < 0 {
		ps = append(ps, Problem{"negative_delay", "typing delay must not be negative"})
	}
	return ps
}

// --- mediaMessage ---

type MediaMessageData struct {
	singleOutput
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
	Caption   string `json:"caption,omitempty"`
}

var mediaTypes = map[string]bool{"image": true, "video": true, "audio": true, "document": true}

func (*MediaMessageData) Kind() NodeType { return NodeTypeMediaMessage }

func (d *MediaMessageData) Problems() []Problem {
	var ps []Problem
	if !mediaTypes[d.MediaType] {
		ps = append(ps, Problem{"invalid_media_type", fmt.Sprintf("unsupported media type %q", d.MediaType)})
	}
	if d.URL == "" {
		ps = append(ps, Problem{"missing_url", "media url is empty"})
	}
	if tooLong(d.Caption, MaxTextLength) {
		ps = append(ps, Problem{"text_too_long", fmt.Sprintf("caption exceeds %d characters", MaxTextLength)})
	}
	return ps
}

// --- quickReplies / actionButtons ---

type Button struct {
	ID           string `json:"id,omitempty"`
	Label        string `json:"label"`
	TargetNodeID string `json:"targetNodeId,omitempty"`
}

// ButtonSet is the shape shared by quickReplies and actionButtons.
type ButtonSet struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons"`
}

func (b *ButtonSet) Slots() []string {
	out := make([]string, len(b.Buttons))
	for i := range b.Buttons {
		out[i] = ButtonHandle(i)
	}
	return out
}

func (b *ButtonSet) Target(handle string) string {
	if i, ok := indexedHandle(handle, "button-", len(b.Buttons)); ok {
		return b.Buttons[i].TargetNodeID
	}
	return ""
}

func (b *ButtonSet) SetTarget(handle, nodeID string) bool {
	i, ok := indexedHandle(handle, "button-", len(b.Buttons))
	if ok {
		b.Buttons[i].TargetNodeID = nodeID
	}
	return ok
}

func (b *ButtonSet) Problems() []Problem {
	var ps []Problem
	if strings.TrimSpace(b.Text) == "" {
		ps = append(ps, Problem{"empty_text", "message text is empty"})
	}
	if tooLong(b.Text, MaxTextLength) {
		ps = append(ps, Problem{"text_too_long", fmt.Sprintf("message text exceeds %d characters", MaxTextLength)})
	}
	if n := len(b.Buttons); n < 1 || n > MaxButtons {
		ps = append(ps, Problem{"button_count", fmt.Sprintf("need 1 to %d buttons, have %d", MaxButtons, n)})
	}
	seen := make(map[string]bool, len(b.Buttons))
	for i, btn := range b.Buttons {
		switch {
		case strings.TrimSpace(btn.Label) == "":
			ps = append(ps, Problem{"empty_label", fmt.Sprintf("button %d has no label", i)})
		case tooLong(btn.Label, MaxButtonLabel):
			ps = append(ps, Problem{"label_too_long", fmt.Sprintf("button %d label exceeds %d characters", i, MaxButtonLabel)})
		case seen[btn.Label]:
			ps = append(ps, Problem{"duplicate_label", fmt.Sprintf("button label %q is used twice", btn.Label)})
		}
		seen[btn.Label] = true
	}
	return ps
}

// Match resolves an inbound reply to a button slot. A reply matches on the
// exact label, on the button's own id, or on its slot handle.
func (b *ButtonSet) Match(text, buttonID string) (string, bool) {
	for i, btn := range b.Buttons {
		h := ButtonHandle(i)
		if buttonID != "" && (buttonID == h || (btn.ID != "" && buttonID == btn.ID)) {
			return h, true
		}
	}
	for i, btn := range b.Buttons {
		if text == btn.Label {
			return ButtonHandle(i), true
		}
	}
	return "", false
}

type QuickRepliesData struct {
	ButtonSet
}

func (*QuickRepliesData) Kind() NodeType { return NodeTypeQuickReplies }

type ActionButtonsData struct {
	ButtonSet
}

func (*ActionButtonsData) Kind() NodeType { return NodeTypeActionButtons }

// --- listMessage ---

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListMessageData struct {
	singleOutput
	Text         string    `json:"text"`
	ButtonText   string    `json:"buttonText"`
	Rows         []ListRow `json:"rows"`
	VariableName string    `json:"variableName,omitempty"`
}

func (*ListMessageData) Kind() NodeType { return NodeTypeListMessage }

func (d *ListMessageData) Problems() []Problem {
	var ps []Problem
	if strings.TrimSpace(d.Text) == "" {
		ps = append(ps, Problem{"empty_text", "message text is empty"})
	}
	if tooLong(d.Text, MaxTextLength) {
		ps = append(ps, Problem{"text_too_long", fmt.Sprintf("message text exceeds %d characters", MaxTextLength)})
	}
	if tooLong(d.ButtonText, MaxButtonLabel) {
		ps = append(ps, Problem{"label_too_long", fmt.Sprintf("list button text exceeds %d characters", MaxButtonLabel)})
	}
	if n := len(d.Rows); n < 1 || n > MaxListRows {
		ps = append(ps, Problem{"row_count", fmt.Sprintf("need 1 to %d rows, have %d", MaxListRows, n)})
	}
	for i, r := range d.Rows {
		if strings.TrimSpace(r.Title) == "" {
			ps = append(ps, Problem{"empty_label", fmt.Sprintf("row %d has no title", i)})
		} else if tooLong(r.Title, MaxListRowTitle) {
			ps = append(ps, Problem{"label_too_long", fmt.Sprintf("row %d title exceeds %d characters", i, MaxListRowTitle)})
		}
	}
	return ps
}

// Select resolves an inbound reply to a row title. Unmatched replies are
// returned verbatim.
func (d *ListMessageData) Select(text, rowID string) string {
	for _, r := range d.Rows {
		if (rowID != "" && rowID == r.ID) || strings.EqualFold(text, r.Title) {
			return r.Title
		}
	}
	return text
}

// --- condition ---

type MatchType string

const (
	MatchStartsWith MatchType = "starts_with"
	MatchContains   MatchType = "contains"
	MatchEquals     MatchType = "equals"
	MatchDefault    MatchType = "default"
)

// ConditionRule is one branch of a condition node. Variable selects the
// binding to test; empty means the latest inbound message.
type ConditionRule struct {
	MatchType    MatchType `json:"matchType"`
	Variable     string    `json:"variable,omitempty"`
	Value        string    `json:"value,omitempty"`
	TargetNodeID string    `json:"targetNodeId,omitempty"`
}

type ConditionData struct {
	Conditions []ConditionRule `json:"conditions"`
}

func (*ConditionData) Kind() NodeType { return NodeTypeCondition }

func (d *ConditionData) Slots() []string {
	out := make([]string, len(d.Conditions))
	for i := range d.Conditions {
		out[i] = ConditionHandle(i)
	}
	return out
}

func (d *ConditionData) Target(handle string) string {
	if i, ok := indexedHandle(handle, "condition-", len(d.Conditions)); ok {
		return d.Conditions[i].TargetNodeID
	}
	return ""
}

func (d *ConditionData) SetTarget(handle, nodeID string) bool {
	i, ok := indexedHandle(handle, "condition-", len(d.Conditions))
	if ok {
		d.Conditions[i].TargetNodeID = nodeID
	}
	return ok
}

func (d *ConditionData) Problems() []Problem {
	var ps []Problem
	defaults := 0
	for i, r := range d.Conditions {
		switch r.MatchType {
		case MatchDefault:
			defaults++
			if i != len(d.Conditions)-1 {
				ps = append(ps, Problem{"default_not_last", fmt.Sprintf("default rule at position %d must be last", i)})
			}
		case MatchStartsWith, MatchContains, MatchEquals:
			if r.Value == "" {
				ps = append(ps, Problem{"empty_rule_value", fmt.Sprintf("rule %d has no value to match", i)})
			}
		default:
			ps = append(ps, Problem{"invalid_match_type", fmt.Sprintf("rule %d has unknown match type %q", i, r.MatchType)})
		}
	}
	switch {
	case defaults == 0:
		ps = append(ps, Problem{"missing_default_rule", "missing default rule"})
	case defaults > 1:
		ps = append(ps, Problem{"multiple_default_rules", fmt.Sprintf("%d default rules, expected exactly one", defaults)})
	}
	return ps
}

// --- waitResponse ---

type WaitResponseData struct {
	TimeoutSeconds      int    `json:"timeoutSeconds"`
	VariableName        string `json:"variableName"`
	TimeoutTargetNodeID string `json:"timeoutTargetNodeId,omitempty"`
}

func (*WaitResponseData) Kind() NodeType { return NodeTypeWaitResponse }

func (*WaitResponseData) Slots() []string { return []string{HandleReceived, HandleTimedOut} }

func (d *WaitResponseData) Target(handle string) string {
	if handle == HandleTimedOut {
		return d.TimeoutTargetNodeID
	}
	return ""
}

func (d *WaitResponseData) SetTarget(handle, nodeID string) bool {
	switch handle {
	case HandleTimedOut:
		d.TimeoutTargetNodeID = nodeID
		return true
	case HandleReceived:
		return true
	}
	return false
}

func (d *WaitResponseData) Problems() []Problem {
	if d.TimeoutSeconds <= 0 {
		return []Problem{{"invalid_timeout", "timeout must be greater than zero"}}
	}
	return nil
}

// --- delay ---

type DelayData struct {
	singleOutput
	Seconds int `json:"seconds"`
}

func (*DelayData) Kind() NodeType { return NodeTypeDelay }

func (d *DelayData) Problems() []Problem {
	if d.Seconds < 0 {
		return []Problem{{"negative_delay", "delay must not be negative"}}
	}
	return nil
}

// --- httpRequest ---

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

type HTTPRequestData struct {
	singleOutput
	Method           string            `json:"method"`
	URL              string            `json:"url"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             string            `json:"body,omitempty"`
	ResponseVariable string            `json:"responseVariable,omitempty"`
	TimeoutSeconds   int               `json:"timeoutSeconds,omitempty"`
}

func (*HTTPRequestData) Kind() NodeType { return NodeTypeHTTPRequest }

func (d *HTTPRequestData) Problems() []Problem {
	var ps []Problem
	if !allowedMethods[strings.ToUpper(d.Method)] {
		ps = append(ps, Problem{"invalid_method", fmt.Sprintf("unsupported HTTP method %q", d.Method)})
	}
	if d.URL == "" {
		ps = append(ps, Problem{"missing_url", "request url is empty"})
	}
	if d.TimeoutSeconds < 0 {
		ps = append(ps, Problem{"invalid_timeout", "timeout must not be negative"})
	}
	return ps
}

// --- setVariable ---

type SetVariableData struct {
	singleOutput
	VariableName string `json:"variableName"`
	Value        string `json:"value,omitempty"`
	// Expression, when set, takes precedence over Value.
	Expression string `json:"expression,omitempty"`
}

func (*SetVariableData) Kind() NodeType { return NodeTypeSetVariable }

func (d *SetVariableData) Problems() []Problem {
	if strings.TrimSpace(d.VariableName) == "" {
		return []Problem{{"missing_variable", "variable name is empty"}}
	}
	return nil
}

// --- humanTransfer ---

type HumanTransferData struct {
	singleOutput
	Message string `json:"message,omitempty"`
	Team    string `json:"team,omitempty"`
}

func (*HumanTransferData) Kind() NodeType { return NodeTypeHumanTransfer }

func (d *HumanTransferData) Problems() []Problem {
	if tooLong(d.Message, MaxTextLength) {
		return []Problem{{"text_too_long", fmt.Sprintf("message text exceeds %d characters", MaxTextLength)}}
	}
	return nil
}
