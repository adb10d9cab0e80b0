// Package runtime advances conversations through published flows in
// response to inbound messages and wait deadlines.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/soochol/chatflow/internal/branch"
	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
)

// UnpublishedPolicy decides what happens to a suspended conversation whose
// flow is no longer published.
type UnpublishedPolicy string

const (
	PolicyAbort    UnpublishedPolicy = "abort"
	PolicyContinue UnpublishedPolicy = "continue"
)

// Options tunes the executor.
type Options struct {
	// MaxSilentHops is the number of consecutive node hops allowed without
	// producing outbound output or suspending.
	MaxSilentHops int
	// MaxStepsPerTurn caps all hops in one turn. A turn that starts a
	// conversation counts the start trigger as its first hop; a turn that
	// resumes a wait counts from the node after it.
	MaxStepsPerTurn   int
	UnpublishedPolicy UnpublishedPolicy
	// LockTTL bounds how long a crashed replica keeps a conversation
	// locked. Live holders renew the lock for the whole turn.
	LockTTL     time.Duration
	HTTPTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxSilentHops <= 0 {
		o.MaxSilentHops = 50
	}
	if o.MaxStepsPerTurn <= 0 {
		o.MaxStepsPerTurn = 500
	}
	if o.UnpublishedPolicy == "" {
		o.UnpublishedPolicy = PolicyAbort
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 10 * time.Second
	}
}

// Turn is the outcome of one inbound event.
type Turn struct {
	// Conversation is the state after the turn, nil when the event neither
	// matched a conversation nor started one.
	Conversation *chatflow.Conversation `json:"conversation,omitempty"`
	Outbound     []chatflow.Outbound    `json:"outbound"`
	Started      bool                   `json:"started"`
	// Failure is set when the turn ended the conversation in failed state.
	Failure *chatflow.ExecutionError `json:"-"`
}

// Executor runs conversations. It keeps no per-conversation state in
// memory; every event loads, advances and saves under a per-conversation
// lock.
type Executor struct {
	flows   ports.FlowSource
	store   ports.ConversationStore
	locker  ports.Locker
	sender  ports.Sender
	limiter *Limiter
	events  ports.EventPublisher
	client  *http.Client
	opts    Options
	now     func() time.Time
}

type Option func(*Executor)

func WithLimiter(l *Limiter) Option { return func(e *Executor) { e.limiter = l } }

func WithEvents(p ports.EventPublisher) Option { return func(e *Executor) { e.events = p } }

func WithHTTPClient(c *http.Client) Option { return func(e *Executor) { e.client = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

func NewExecutor(flows ports.FlowSource, store ports.ConversationStore, locker ports.Locker, sender ports.Sender, opts Options, options ...Option) *Executor {
	opts.applyDefaults()
	e := &Executor{
		flows:  flows,
		store:  store,
		locker: locker,
		sender: sender,
		opts:   opts,
		client: http.DefaultClient,
		now:    time.Now,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// turnState carries one turn's accumulated output.
type turnState struct {
	conv *chatflow.Conversation
	flow *chatflow.Flow
	out  []chatflow.Outbound
	now  time.Time
	fail *chatflow.ExecutionError
}

// Conversation returns the stored state for a contact.
func (e *Executor) Conversation(ctx context.Context, tenantID, contactID string) (*chatflow.Conversation, error) {
	if err := chatflow.CheckTenantID(tenantID); err != nil {
		return nil, err
	}
	key := chatflow.ConversationKey(tenantID, contactID)
	conv, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := owned(conv, tenantID); err != nil {
		return nil, err
	}
	return conv, nil
}

// HandleMessage routes an inbound message to the contact's conversation,
// starting one from a matching published flow when none is in progress.
func (e *Executor) HandleMessage(ctx context.Context, in chatflow.Inbound) (*Turn, error) {
	if err := chatflow.CheckTenantID(in.TenantID); err != nil {
		return nil, err
	}
	if in.ContactID == "" {
		return nil, errors.New("contact id is required")
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = e.now()
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, in.TenantID); err != nil {
			return nil, err
		}
		defer e.limiter.Release(in.TenantID)
	}

	key := chatflow.ConversationKey(in.TenantID, in.ContactID)
	unlock, err := e.locker.Lock(ctx, key, e.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", key, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("runtime: unlock failed", "key", key, "err", err)
		}
	}()

	conv, err := e.load(ctx, key, in.TenantID)
	if err != nil {
		return nil, err
	}

	ts := &turnState{now: in.ReceivedAt}
	consumed := false
	if conv != nil && !conv.Status.Terminal() {
		ts.conv = conv
		consumed, err = e.resume(ctx, ts, in)
		if err != nil {
			return nil, err
		}
	}

	turn := &Turn{}
	if !consumed && (ts.conv == nil || ts.conv.Status.Terminal()) {
		started, err := e.start(ctx, ts, in)
		if err != nil {
			return nil, err
		}
		turn.Started = started
	}

	if ts.conv != nil {
		if err := e.store.Save(ctx, ts.conv); err != nil {
			return nil, fmt.Errorf("save conversation %s: %w", key, err)
		}
	}
	turn.Conversation = ts.conv
	turn.Outbound = ts.out
	turn.Failure = ts.fail
	return turn, nil
}

// HandleTimeout resolves the wait identified by waitID as timed out. It is
// a no-op when the wait was already resolved or has not yet expired.
func (e *Executor) HandleTimeout(ctx context.Context, key, waitID string) (*Turn, error) {
	tenantID := chatflow.KeyTenant(key)
	// Slots are taken before the lock, as in HandleMessage.
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, tenantID); err != nil {
			return nil, err
		}
		defer e.limiter.Release(tenantID)
	}

	unlock, err := e.locker.Lock(ctx, key, e.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", key, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("runtime: unlock failed", "key", key, "err", err)
		}
	}()

	conv, err := e.load(ctx, key, tenantID)
	if err != nil || conv == nil {
		return &Turn{}, err
	}
	now := e.now()
	if conv.Status.Terminal() || conv.Wait == nil || conv.Wait.ID != waitID || !conv.Wait.Expired(now) {
		return &Turn{Conversation: conv}, nil
	}

	ts := &turnState{conv: conv, now: now}
	flow, live, err := e.liveFlow(ctx, ts)
	if err != nil {
		return nil, err
	}
	if live {
		ts.flow = flow
		e.resolveTimeout(ctx, ts)
	}
	if err := e.store.Save(ctx, ts.conv); err != nil {
		return nil, fmt.Errorf("save conversation %s: %w", key, err)
	}
	return &Turn{Conversation: ts.conv, Outbound: ts.out, Failure: ts.fail}, nil
}

func (e *Executor) load(ctx context.Context, key, tenantID string) (*chatflow.Conversation, error) {
	conv, err := e.store.Load(ctx, key)
	if errors.Is(err, chatflow.ErrNoConversation) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", key, err)
	}
	if err := owned(conv, tenantID); err != nil {
		return nil, err
	}
	return conv, nil
}

// owned rejects a conversation stored under another tenant.
func owned(conv *chatflow.Conversation, tenantID string) error {
	if conv.TenantID != tenantID {
		return fmt.Errorf("%w: conversation %s requested by tenant %s", chatflow.ErrTenantViolation, conv.Key(), tenantID)
	}
	return nil
}

// liveFlow loads the conversation's flow and applies the unpublished
// policy. It reports false when the conversation was ended instead.
func (e *Executor) liveFlow(ctx context.Context, ts *turnState) (*chatflow.Flow, bool, error) {
	conv := ts.conv
	flow, err := e.flows.GetFlow(ctx, conv.TenantID, conv.FlowID)
	if errors.Is(err, chatflow.ErrNotFound) {
		e.abort(ts, "flow no longer exists")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load flow %s: %w", conv.FlowID, err)
	}
	if flow.Status != chatflow.FlowStatusPublished && e.opts.UnpublishedPolicy == PolicyAbort {
		e.abort(ts, "flow unpublished")
		return nil, false, nil
	}
	return flow, true, nil
}

// resume feeds an inbound message to a conversation in progress. It
// reports whether the message was consumed by it.
func (e *Executor) resume(ctx context.Context, ts *turnState, in chatflow.Inbound) (bool, error) {
	flow, live, err := e.liveFlow(ctx, ts)
	if err != nil || !live {
		return false, err
	}
	ts.flow = flow

	if ts.conv.Wait.Expired(ts.now) {
		e.resolveTimeout(ctx, ts)
		if ts.conv.Status.Terminal() {
			return false, nil
		}
	}
	if ts.conv.Wait == nil {
		// Persisted mid-traversal without a wait; nothing to resume.
		e.finish(ts, chatflow.ConversationCompleted)
		return false, nil
	}
	e.resolveMessage(ctx, ts, in)
	return true, nil
}

// start matches the message against published flows and begins a new
// conversation. It reports whether a flow was started.
func (e *Executor) start(ctx context.Context, ts *turnState, in chatflow.Inbound) (bool, error) {
	flow, startNode, err := e.route(ctx, in)
	if err != nil || flow == nil {
		return false, err
	}

	conv := &chatflow.Conversation{
		TenantID:      in.TenantID,
		ContactID:     in.ContactID,
		FlowID:        flow.ID,
		CurrentNodeID: startNode.ID,
		Status:        chatflow.ConversationActive,
		Variables: map[string]string{
			VarContactID:   in.ContactID,
			VarLastMessage: in.Text,
		},
		StartedAt: ts.now,
		UpdatedAt: ts.now,
	}
	ts.conv = conv
	ts.flow = flow
	e.emit(ts, chatflow.EventConversationStart, startNode, nil)
	slog.Debug("runtime: conversation started", "tenant", in.TenantID, "contact", in.ContactID, "flow", flow.ID)

	e.advance(ctx, ts, e.next(ts, startNode.ID, ""), 1)
	return true, nil
}

// route picks the flow an unsolicited message starts. A pinned FlowID wins;
// otherwise flows whose start keywords match beat catch-all flows, and ties
// go to the oldest flow.
func (e *Executor) route(ctx context.Context, in chatflow.Inbound) (*chatflow.Flow, *chatflow.Node, error) {
	if in.FlowID != "" {
		flow, err := e.flows.GetFlow(ctx, in.TenantID, in.FlowID)
		if err != nil {
			return nil, nil, err
		}
		if flow.Status != chatflow.FlowStatusPublished {
			return nil, nil, fmt.Errorf("flow %s is not published: %w", flow.ID, chatflow.ErrNotFound)
		}
		starts := flow.StartNodes()
		if len(starts) == 0 {
			return nil, nil, nil
		}
		return flow, starts[0], nil
	}

	flows, err := e.flows.PublishedFlows(ctx, in.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("list published flows: %w", err)
	}
	sort.SliceStable(flows, func(i, j int) bool {
		if !flows[i].CreatedAt.Equal(flows[j].CreatedAt) {
			return flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}
		return flows[i].ID < flows[j].ID
	})

	var fallbackFlow *chatflow.Flow
	var fallbackNode *chatflow.Node
	for _, f := range flows {
		for _, n := range f.StartNodes() {
			d, ok := n.Data.(*chatflow.StartTriggerData)
			if !ok || !d.Matches(in.Text) {
				continue
			}
			if len(d.Keywords) > 0 {
				return f, n, nil
			}
			if fallbackFlow == nil {
				fallbackFlow, fallbackNode = f, n
			}
		}
	}
	return fallbackFlow, fallbackNode, nil
}

// next returns the target of the edge leaving nodeID through handle, or ""
// when the slot has no edge.
func (e *Executor) next(ts *turnState, nodeID, handle string) string {
	if edge, ok := ts.flow.EdgeFrom(nodeID, handle); ok {
		return edge.Target
	}
	return ""
}

// clearWait resolves the pending wait exactly once.
func (e *Executor) clearWait(ts *turnState, node *chatflow.Node, outcome string) {
	ts.conv.Wait = nil
	ts.conv.Status = chatflow.ConversationActive
	e.emit(ts, chatflow.EventWaitResolved, node, map[string]any{"outcome": outcome})
}

func (e *Executor) resolveTimeout(ctx context.Context, ts *turnState) {
	w := ts.conv.Wait
	node, ok := ts.flow.Node(w.NodeID)
	if !ok {
		e.fail(ts, &chatflow.ExecutionError{Kind: chatflow.ExecMissingTarget, NodeID: w.NodeID, Err: chatflow.ErrNotFound})
		return
	}
	handle := ""
	if w.Kind == chatflow.WaitResponse {
		handle = chatflow.HandleTimedOut
	}
	e.clearWait(ts, node, "timeout")
	e.advance(ctx, ts, e.next(ts, node.ID, handle), 0)
}

func (e *Executor) resolveMessage(ctx context.Context, ts *turnState, in chatflow.Inbound) {
	conv := ts.conv
	w := conv.Wait
	node, ok := ts.flow.Node(w.NodeID)
	if !ok {
		e.fail(ts, &chatflow.ExecutionError{Kind: chatflow.ExecMissingTarget, NodeID: w.NodeID, Err: chatflow.ErrNotFound})
		return
	}

	handle := ""
	switch d := node.Data.(type) {
	case *chatflow.QuickRepliesData:
		h, ok := d.Match(in.Text, in.ButtonID)
		if !ok {
			e.reprompt(ctx, ts, node)
			return
		}
		handle = h
	case *chatflow.ActionButtonsData:
		h, ok := d.Match(in.Text, in.ButtonID)
		if !ok {
			e.reprompt(ctx, ts, node)
			return
		}
		handle = h
	case *chatflow.ListMessageData:
		if d.VariableName != "" {
			conv.Variables[d.VariableName] = d.Select(in.Text, in.ButtonID)
		}
	case *chatflow.WaitResponseData:
		if d.VariableName != "" {
			conv.Variables[d.VariableName] = in.Text
		}
		handle = chatflow.HandleReceived
	case *chatflow.DelayData:
		// Messages during a delay are dropped; only the deadline resumes it.
		slog.Debug("runtime: message ignored during delay", "key", conv.Key(), "node", node.ID)
		return
	case *chatflow.TextMessageData:
	default:
		e.fail(ts, &chatflow.ExecutionError{Kind: chatflow.ExecBadPayload, NodeID: node.ID,
			Err: fmt.Errorf("node type %s cannot wait for a reply", node.Type)})
		return
	}

	conv.Variables[VarLastMessage] = in.Text
	e.clearWait(ts, node, "message")
	e.advance(ctx, ts, e.next(ts, node.ID, handle), 0)
}

// reprompt re-sends a button prompt after an unmatched reply. The wait
// stays open.
func (e *Executor) reprompt(ctx context.Context, ts *turnState, node *chatflow.Node) {
	if _, err := e.execute(ctx, ts, node); err != nil {
		e.fail(ts, err)
	}
}

// step is what executing one node produced.
type step struct {
	sent     bool
	wait     *chatflow.Wait
	handle   string
	terminal chatflow.ConversationStatus
}

// advance walks the graph from nodeID until the conversation suspends or
// ends. hops is the number already taken this turn without output.
func (e *Executor) advance(ctx context.Context, ts *turnState, nodeID string, hops int) {
	silent := hops
	for steps := hops; ; steps++ {
		if nodeID == "" {
			e.finish(ts, chatflow.ConversationCompleted)
			return
		}
		if steps >= e.opts.MaxStepsPerTurn || silent >= e.opts.MaxSilentHops {
			e.fail(ts, &chatflow.ExecutionError{Kind: chatflow.ExecStepBudget, NodeID: nodeID,
				Err: fmt.Errorf("%d steps, %d without output", steps, silent)})
			return
		}
		node, ok := ts.flow.Node(nodeID)
		if !ok {
			e.fail(ts, &chatflow.ExecutionError{Kind: chatflow.ExecMissingTarget, NodeID: nodeID, Err: chatflow.ErrNotFound})
			return
		}

		ts.conv.CurrentNodeID = node.ID
		e.emit(ts, chatflow.EventConversationStep, node, nil)

		st, xerr := e.execute(ctx, ts, node)
		if xerr != nil {
			e.fail(ts, xerr)
			return
		}
		if st.sent {
			silent = 0
		} else {
			silent++
		}
		if st.wait != nil {
			ts.conv.Wait = st.wait
			ts.conv.Status = chatflow.ConversationWaiting
			ts.conv.UpdatedAt = ts.now
			return
		}
		if st.terminal != "" {
			e.finish(ts, st.terminal)
			return
		}
		nodeID = e.next(ts, node.ID, st.handle)
	}
}

// execute runs a single node.
func (e *Executor) execute(ctx context.Context, ts *turnState, node *chatflow.Node) (step, *chatflow.ExecutionError) {
	vars := ts.conv.Variables
	base := chatflow.Outbound{
		TenantID:  ts.conv.TenantID,
		ContactID: ts.conv.ContactID,
		FlowID:    ts.conv.FlowID,
		NodeID:    node.ID,
	}
	bad := func(err error) *chatflow.ExecutionError {
		return &chatflow.ExecutionError{Kind: chatflow.ExecBadPayload, NodeID: node.ID, Err: err}
	}

	switch d := node.Data.(type) {
	case *chatflow.StartTriggerData:
		return step{}, nil

	case *chatflow.TextMessageData:
		msg := base
		msg.Kind = chatflow.OutboundText
		msg.Text = Interpolate(d.Text, vars)
		msg.TypingDelay = time.Duration(d.TypingDelaySeconds) * time.Second
		if err := e.send(ctx, ts, msg); err != nil {
			return step{}, err
		}
		st := step{sent: true}
		if d.WaitForResponse {
			st.wait = e.newWait(ts, node, chatflow.WaitReply, 0)
		}
		return st, nil

	case *chatflow.MediaMessageData:
		msg := base
		msg.Kind = chatflow.OutboundMedia
		msg.MediaType = d.MediaType
		msg.URL = Interpolate(d.URL, vars)
		msg.Text = Interpolate(d.Caption, vars)
		if err := e.send(ctx, ts, msg); err != nil {
			return step{}, err
		}
		return step{sent: true}, nil

	case *chatflow.QuickRepliesData:
		return e.sendButtons(ctx, ts, node, base, &d.ButtonSet)

	case *chatflow.ActionButtonsData:
		return e.sendButtons(ctx, ts, node, base, &d.ButtonSet)

	case *chatflow.ListMessageData:
		msg := base
		msg.Kind = chatflow.OutboundList
		msg.Text = Interpolate(d.Text, vars)
		msg.ButtonText = d.ButtonText
		msg.Rows = append([]chatflow.ListRow(nil), d.Rows...)
		if err := e.send(ctx, ts, msg); err != nil {
			return step{}, err
		}
		return step{sent: true, wait: e.newWait(ts, node, chatflow.WaitReply, 0)}, nil

	case *chatflow.ConditionData:
		res, err := branch.EvaluateCondition(d.Conditions, vars, vars[VarLastMessage])
		if errors.Is(err, branch.ErrUnresolvable) {
			return step{}, &chatflow.ExecutionError{Kind: chatflow.ExecUnresolvableCondition, NodeID: node.ID, Err: err}
		}
		if err != nil {
			return step{}, bad(err)
		}
		return step{handle: res.Handle}, nil

	case *chatflow.WaitResponseData:
		if d.TimeoutSeconds <= 0 {
			return step{}, bad(fmt.Errorf("timeout must be greater than zero"))
		}
		return step{wait: e.newWait(ts, node, chatflow.WaitResponse, time.Duration(d.TimeoutSeconds)*time.Second)}, nil

	case *chatflow.DelayData:
		if d.Seconds <= 0 {
			return step{}, nil
		}
		return step{wait: e.newWait(ts, node, chatflow.WaitDelay, time.Duration(d.Seconds)*time.Second)}, nil

	case *chatflow.HTTPRequestData:
		if err := e.callHTTP(ctx, d, vars); err != nil {
			return step{}, &chatflow.ExecutionError{Kind: chatflow.ExecHTTPFailure, NodeID: node.ID, Err: err}
		}
		return step{}, nil

	case *chatflow.SetVariableData:
		if d.VariableName == "" {
			return step{}, bad(fmt.Errorf("variable name is empty"))
		}
		value := Interpolate(d.Value, vars)
		if d.Expression != "" {
			v, err := Evaluate(d.Expression, vars)
			if err != nil {
				return step{}, bad(err)
			}
			value = v
		}
		vars[d.VariableName] = value
		return step{}, nil

	case *chatflow.HumanTransferData:
		msg := base
		msg.Kind = chatflow.OutboundTransfer
		msg.Text = Interpolate(d.Message, vars)
		msg.Team = d.Team
		if err := e.send(ctx, ts, msg); err != nil {
			return step{}, err
		}
		return step{sent: true, terminal: chatflow.ConversationTransferred}, nil
	}
	return step{}, bad(fmt.Errorf("unsupported payload %T for node type %s", node.Data, node.Type))
}

func (e *Executor) sendButtons(ctx context.Context, ts *turnState, node *chatflow.Node, base chatflow.Outbound, set *chatflow.ButtonSet) (step, *chatflow.ExecutionError) {
	msg := base
	msg.Kind = chatflow.OutboundButtons
	msg.Text = Interpolate(set.Text, ts.conv.Variables)
	for _, b := range set.Buttons {
		msg.Buttons = append(msg.Buttons, b.Label)
	}
	if err := e.send(ctx, ts, msg); err != nil {
		return step{}, err
	}
	if ts.conv.Wait != nil && ts.conv.Wait.NodeID == node.ID {
		// Re-prompt keeps the wait that is already open.
		return step{sent: true, wait: ts.conv.Wait}, nil
	}
	return step{sent: true, wait: e.newWait(ts, node, chatflow.WaitReply, 0)}, nil
}

func (e *Executor) send(ctx context.Context, ts *turnState, msg chatflow.Outbound) *chatflow.ExecutionError {
	if err := e.sender.Send(ctx, msg); err != nil {
		return &chatflow.ExecutionError{Kind: chatflow.ExecDeliveryFailure, NodeID: msg.NodeID, Err: err}
	}
	ts.out = append(ts.out, msg)
	if e.events != nil {
		e.events.Publish(chatflow.Event{
			Type:      chatflow.EventMessageSent,
			TenantID:  msg.TenantID,
			FlowID:    msg.FlowID,
			ContactID: msg.ContactID,
			NodeID:    msg.NodeID,
			Payload:   map[string]any{"kind": string(msg.Kind)},
			Timestamp: ts.now,
		})
	}
	return nil
}

func (e *Executor) newWait(ts *turnState, node *chatflow.Node, kind chatflow.WaitKind, timeout time.Duration) *chatflow.Wait {
	w := &chatflow.Wait{ID: chatflow.GenerateID("wait"), NodeID: node.ID, Kind: kind}
	if timeout > 0 {
		w.Deadline = ts.now.Add(timeout)
	}
	return w
}

func (e *Executor) finish(ts *turnState, status chatflow.ConversationStatus) {
	ts.conv.Status = status
	ts.conv.Wait = nil
	ts.conv.UpdatedAt = ts.now
	var node *chatflow.Node
	if ts.flow != nil {
		node, _ = ts.flow.Node(ts.conv.CurrentNodeID)
	}
	e.emit(ts, chatflow.EventConversationEnd, node, map[string]any{"status": string(status)})
}

func (e *Executor) abort(ts *turnState, reason string) {
	ts.conv.LastError = reason
	slog.Info("runtime: conversation aborted", "key", ts.conv.Key(), "flow", ts.conv.FlowID, "reason", reason)
	e.finish(ts, chatflow.ConversationAborted)
}

// fail ends the turn in failed state. Execution errors stay within this
// conversation.
func (e *Executor) fail(ts *turnState, xerr *chatflow.ExecutionError) {
	conv := ts.conv
	conv.Status = chatflow.ConversationFailed
	conv.Wait = nil
	conv.LastError = xerr.Error()
	conv.UpdatedAt = ts.now
	ts.fail = xerr
	slog.Error("runtime: conversation turn failed",
		"tenant", conv.TenantID,
		"contact", conv.ContactID,
		"flow", conv.FlowID,
		"node", xerr.NodeID,
		"kind", xerr.Kind,
		"err", xerr,
	)
	var node *chatflow.Node
	if ts.flow != nil {
		node, _ = ts.flow.Node(xerr.NodeID)
	}
	e.emit(ts, chatflow.EventConversationFail, node, map[string]any{"kind": string(xerr.Kind)})
}

func (e *Executor) emit(ts *turnState, typ chatflow.EventType, node *chatflow.Node, payload map[string]any) {
	if e.events == nil {
		return
	}
	ev := chatflow.Event{
		Type:      typ,
		TenantID:  ts.conv.TenantID,
		FlowID:    ts.conv.FlowID,
		ContactID: ts.conv.ContactID,
		Payload:   payload,
		Timestamp: ts.now,
	}
	if node != nil {
		ev.NodeID = node.ID
		ev.NodeType = node.Type
	}
	e.events.Publish(ev)
}
