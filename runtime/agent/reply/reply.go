package reply

import (
	"context"
	"fmt"
	"time"

	"goa.design/goa-ai/runtime/agent/approval"
	"goa.design/goa-ai/runtime/agent/compaction"
	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/dispatch"
	"goa.design/goa-ai/runtime/agent/inspector"
	"goa.design/goa-ai/runtime/agent/model"
	"goa.design/goa-ai/runtime/agent/telemetry"
)

type (
	// Options configures one reply-loop invocation.
	Options struct {
		Model       string
		ModelClass  model.ModelClass
		Temperature float32
		MaxTokens   int

		// MaxToolRounds caps consecutive tool-call rounds before the loop
		// gives up and returns control to the caller with an error, guarding
		// against a model that never stops requesting tools.
		MaxToolRounds int
	}

	// EventKind discriminates the variant carried by an Event.
	EventKind string

	// Event is emitted by the reply loop as the turn progresses so a caller
	// can stream partial results to a UI (spec.md §4.7's event stream:
	// Message, ModelChange, HistoryReplaced).
	Event struct {
		Kind         EventKind
		Message      *conversation.Message
		HistoryAfter *conversation.Conversation // set on HistoryReplaced
		Err          error
	}

	// Sink receives Events as the loop runs. Implementations must not block
	// indefinitely; the loop blocks on each Emit call.
	Sink interface {
		Emit(Event)
	}

	// Loop drives one agent turn: render history to the provider, run any
	// requested tool calls through inspection/approval/dispatch, and repeat
	// until the model emits a turn with no tool requests.
	Loop struct {
		Client     model.Client
		Inspectors *inspector.Chain
		Approval   approval.Handler
		Dispatcher *dispatch.Dispatcher
		Compactor  *compaction.Compactor
		Logger     telemetry.Logger
		Tools      func() []*model.ToolDefinition
		Options    Options
	}
)

const (
	// EventMessage carries a new message appended to the conversation
	// (assistant turn or tool-response turn).
	EventMessage EventKind = "message"
	// EventModelChange signals the provider/model identifier changed
	// mid-turn (e.g. a fallback model after a context_exceeded retry).
	EventModelChange EventKind = "model_change"
	// EventHistoryReplaced signals the conversation was rewritten in place
	// by compaction; HistoryAfter carries the new conversation.
	EventHistoryReplaced EventKind = "history_replaced"
)

// Run executes one user turn: conv must already have the user's message
// appended. Run appends assistant/tool-response messages to conv in place
// and returns once the model produces a turn with no further tool requests,
// the context is cancelled, or an unrecoverable error occurs.
//
// Per spec.md invariant 1 ("within one turn, messages are appended in
// strict causal order: assistant request before its tool responses, tool
// responses before the next assistant turn"), the loop never reorders or
// parallelizes across rounds — only the tool calls within a single round
// dispatch concurrently.
func (l *Loop) Run(ctx context.Context, conv *conversation.Conversation, sink Sink) error {
	maxRounds := l.MaxToolRounds()
	compactedOnce := false

	for round := 0; ; round++ {
		if round >= maxRounds {
			return fmt.Errorf("reply: exceeded %d tool-call rounds without a final response", maxRounds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := l.complete(ctx, conv)
		if err != nil {
			if model.IsContextExceeded(err) && !compactedOnce && l.Compactor != nil {
				compactedOnce = true
				if cerr := l.Compactor.Compact(ctx, conv); cerr != nil {
					return fmt.Errorf("reply: compaction after context_exceeded: %w", cerr)
				}
				l.emit(sink, Event{Kind: EventHistoryReplaced, HistoryAfter: conv})
				continue // retry the same round once against the compacted history
			}
			return fmt.Errorf("reply: model call: %w", err)
		}

		content := fromModelResponse(resp)
		assistantMsg := conversation.NewMessage(conversation.RoleAssistant, now(), content...)
		conv.Append(assistantMsg)
		l.emit(sink, Event{Kind: EventMessage, Message: &assistantMsg})

		requests := assistantMsg.ToolRequests()
		if len(requests) == 0 {
			return nil // final turn: plain assistant text, no tool requests
		}

		responses, err := l.handleToolRequests(ctx, requests, conv, sink)
		if err != nil {
			return err
		}

		var respContent []conversation.Content
		for _, r := range responses {
			respContent = append(respContent, conversation.Content{Kind: conversation.KindToolResponse, ToolResponse: &r})
		}
		toolMsg := conversation.NewMessage(conversation.RoleUser, now(), respContent...)
		conv.Append(toolMsg)
		l.emit(sink, Event{Kind: EventMessage, Message: &toolMsg})
	}
}

// MaxToolRounds returns the configured round cap or a safe default.
func (l *Loop) MaxToolRounds() int {
	if l.Options.MaxToolRounds > 0 {
		return l.Options.MaxToolRounds
	}
	return 50
}

func (l *Loop) complete(ctx context.Context, conv *conversation.Conversation) (*model.Response, error) {
	var toolDefs []*model.ToolDefinition
	if l.Tools != nil {
		toolDefs = l.Tools()
	}
	req := toModelRequest(conv, toolDefs, l.Options)
	return l.Client.Complete(ctx, req)
}

// handleToolRequests inspects every request in this round, resolves any
// RequireApproval decisions through the approval handler, and dispatches
// every non-denied request concurrently. Denied/declined requests receive
// the synthetic DeclinedResponse (tool_execution.rs's DECLINED_RESPONSE)
// rather than being dropped, so the model always sees a response per
// request (invariant 2).
//
// Per spec.md §4.5/§5, a RequireApproval decision emits a tool-confirmation-
// request message on the event stream before the loop awaits the approval
// action, so a UI driven by Sink can render the pending prompt; this keeps
// the stream's causal ordering (assistant message, then zero or more
// confirmation requests, then zero or more tool responses, then the next
// assistant message) actually observable rather than only true of conv.
func (l *Loop) handleToolRequests(ctx context.Context, requests []conversation.ToolRequestContent, history *conversation.Conversation, sink Sink) ([]conversation.ToolResponseContent, error) {
	reduced, err := l.Inspectors.Inspect(ctx, requests, history)
	if err != nil {
		return nil, fmt.Errorf("reply: inspect tool requests: %w", err)
	}

	var toDispatch []conversation.ToolRequestContent
	responses := make(map[string]conversation.ToolResponseContent, len(requests))

	for _, req := range requests {
		result := reduced[req.ID]
		switch result.Action.Kind {
		case inspector.ActionDeny:
			responses[req.ID] = dispatch.DispatchDeclined(req.ID)
		case inspector.ActionRequireApproval:
			if l.Approval == nil {
				responses[req.ID] = dispatch.DispatchDeclined(req.ID)
				continue
			}
			confirmationMsg := conversation.NewMessage(conversation.RoleSystem, now(),
				conversation.ToolConfirmationRequest(req.ID, req.Name, req.Args, result.Action.Warning))
			l.emit(sink, Event{Kind: EventMessage, Message: &confirmationMsg})

			action, err := l.Approval.RequestApproval(ctx, req.ID, approval.Request{
				Type: approval.ToolCallType(req.Name, result.Action.Warning),
			})
			if err != nil {
				return nil, fmt.Errorf("reply: request approval for %q: %w", req.Name, err)
			}
			if !action.IsApproved() {
				responses[req.ID] = dispatch.DispatchDeclined(req.ID)
				continue
			}
			toDispatch = append(toDispatch, req)
		default: // ActionAllow
			toDispatch = append(toDispatch, req)
		}
	}

	dispatched := l.Dispatcher.DispatchAll(ctx, toDispatch)
	for i, req := range toDispatch {
		responses[req.ID] = dispatched[i]
	}

	out := make([]conversation.ToolResponseContent, 0, len(requests))
	for _, req := range requests {
		out = append(out, responses[req.ID])
	}
	return out, nil
}

func (l *Loop) emit(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	sink.Emit(ev)
}

// now is a seam so tests can stamp deterministic message timestamps; the
// production path always uses wall-clock time.
var now = time.Now
