// Package agentcore assembles the extension registry, tool registry,
// inspector chain, approval handler, dispatcher, and reply loop into the
// top-level Agent type spec.md §4.10 describes. One Agent per running
// instance owns the shared extension registry and a session.Manager.
//
// Grounded on runtime/agent/runtime/runtime.go's Runtime type, which wires
// an analogous (but Temporal-workflow-oriented) set of collaborators; this
// package collapses that wiring into the plain, blocking assembly spec.md
// calls for.
package agentcore

import (
	"context"
	"fmt"
	"time"

	"goa.design/goa-ai/runtime/agent/approval"
	"goa.design/goa-ai/runtime/agent/compaction"
	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/dispatch"
	"goa.design/goa-ai/runtime/agent/extension"
	"goa.design/goa-ai/runtime/agent/inspector"
	"goa.design/goa-ai/runtime/agent/model"
	"goa.design/goa-ai/runtime/agent/reply"
	"goa.design/goa-ai/runtime/agent/session"
	"goa.design/goa-ai/runtime/agent/telemetry"
)

type (
	// Deps are the shared, process-wide collaborators an Agent needs. One
	// Deps instance is normally constructed once per runtime instance and
	// reused across all sessions; per-session state (inspector permission
	// memory, approval channel) is created fresh in NewSession.
	Deps struct {
		Client     model.Client
		Platforms  map[string]extension.PlatformFactory
		Logger     telemetry.Logger
		Tracer     telemetry.Tracer
		Compactor  *compaction.Compactor
		ToolsFunc  func(*extension.Registry) func() []*model.ToolDefinition
		ReplyOpts  reply.Options
	}

	// Agent is one running instance of the agent runtime: a registry of
	// extensions shared process-wide, and a session.Manager over the
	// per-conversation state each reply loop runs against.
	Agent struct {
		deps     Deps
		sessions *session.Manager
		registry *extension.Registry
	}

	// SessionHandle bundles the collaborators a single session needs to run
	// turns, so callers don't have to re-derive them on every call.
	SessionHandle struct {
		Session  *session.AgentSession
		Approval *approval.ChannelHandler
		Loop     *reply.Loop
	}
)

// New constructs an Agent with a fresh extension registry.
func New(deps Deps) *Agent {
	if deps.Logger == nil {
		deps.Logger = telemetry.NewNoopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewNoopTracer()
	}
	return &Agent{
		deps:     deps,
		sessions: session.NewManager(),
		registry: extension.NewRegistry(deps.Platforms, deps.Logger, deps.Tracer),
	}
}

// Registry returns the shared extension registry so callers can Add/Remove
// extensions before issuing turns.
func (a *Agent) Registry() *extension.Registry { return a.registry }

// NewSession creates (or returns, if id already exists) a session and the
// per-session collaborators — a fresh Permission inspector memory, a fresh
// approval channel, and a reply.Loop wired to this Agent's shared registry
// and dispatcher — needed to run turns against it.
func (a *Agent) NewSession(id, workingDir string, kind session.Kind) *SessionHandle {
	s := a.sessions.Create(id, workingDir, kind)

	permInspector := &inspector.Permission{}
	chain := inspector.NewChain(&inspector.Security{}, &inspector.Repetition{}, permInspector)
	approvalHandler := approval.NewChannelHandler(16)
	dispatcher := dispatch.New(a.registry, nil, a.deps.Logger, a.deps.Tracer)

	var toolsFunc func() []*model.ToolDefinition
	if a.deps.ToolsFunc != nil {
		toolsFunc = a.deps.ToolsFunc(a.registry)
	}

	loop := &reply.Loop{
		Client:     a.deps.Client,
		Inspectors: chain,
		Approval:   approvalHandler,
		Dispatcher: dispatcher,
		Compactor:  a.deps.Compactor,
		Logger:     a.deps.Logger,
		Tools:      toolsFunc,
		Options:    a.deps.ReplyOpts,
	}

	return &SessionHandle{Session: s, Approval: approvalHandler, Loop: loop}
}

// Session returns the handle for an existing session id.
func (a *Agent) Session(id string) (*session.AgentSession, error) {
	return a.sessions.Get(id)
}

// Reply appends userText as a user turn to the session's conversation and
// runs the reply loop to completion. Before the turn it compacts the
// conversation when the Compactor's token estimate of the whole history
// already exceeds its ThresholdTokens. Token usage is not added to the
// session's counters, and the gate does not read them.
func (a *Agent) Reply(ctx context.Context, h *SessionHandle, userText string, sink reply.Sink) error {
	if h == nil {
		return fmt.Errorf("agentcore: nil session handle")
	}
	conv := h.Session.Conversation()

	if h.Loop.Compactor != nil && h.Loop.Compactor.NeedsCompaction(conv) {
		if err := h.Loop.Compactor.Compact(ctx, conv); err != nil {
			return fmt.Errorf("agentcore: pre-turn compaction: %w", err)
		}
		if sink != nil {
			sink.Emit(reply.Event{Kind: reply.EventHistoryReplaced, HistoryAfter: conv})
		}
	}

	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text(userText)))
	return h.Loop.Run(ctx, conv, sink)
}
