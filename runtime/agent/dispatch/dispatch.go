// Package dispatch routes an approved tool request to its owning extension
// and executes it, fanning concurrent requests out over goroutines and
// joining their results, grounded on tool_execution.rs's dispatch_tool_call
// (MCP/frontend/platform routing by owner) and the teacher's
// runtime/agent/tools/issue.go parallel-call shape.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/extension"
	"goa.design/goa-ai/runtime/agent/telemetry"
	"goa.design/goa-ai/runtime/agent/toolregistry"
	"goa.design/goa-ai/runtime/mcp"
)

// DeclinedResponse is substituted as a tool's response payload when the
// request was denied or the user declined an approval prompt, verbatim from
// tool_execution.rs's DECLINED_RESPONSE constant so a model sees the exact
// wording its training/prompting already expects.
const DeclinedResponse = "The user has declined to run this tool. " +
	"DO NOT attempt to call this tool again. If there are no alternative " +
	"methods to proceed, clearly explain the situation and STOP."

type (
	// FrontendCaller dispatches a tool request that must run in the UI
	// process rather than through an MCP extension (e.g. a browser-side
	// tool). One FrontendCaller is scoped to a session; the reply loop
	// supplies it when frontend tools are registered for that session.
	FrontendCaller interface {
		CallFrontendTool(ctx context.Context, req conversation.FrontendToolRequestContent) (conversation.ToolResponseContent, error)
	}

	// Dispatcher resolves and executes approved tool requests against a
	// Registry of live extensions.
	Dispatcher struct {
		registry *extension.Registry
		frontend FrontendCaller
		logger   telemetry.Logger
		tracer   telemetry.Tracer
	}
)

// New constructs a Dispatcher. frontend may be nil if the session has no
// frontend-resident tools registered.
func New(registry *extension.Registry, frontend FrontendCaller, logger telemetry.Logger, tracer telemetry.Tracer) *Dispatcher {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Dispatcher{registry: registry, frontend: frontend, logger: logger, tracer: tracer}
}

// Dispatch executes a single approved tool request and returns its response
// content, with Success=false and Error set on any failure rather than a Go
// error — a tool failure is a normal conversation outcome the model must see,
// not a dispatcher fault (mirrors tool_execution.rs's "errors become tool
// results, not channel failures").
func (d *Dispatcher) Dispatch(ctx context.Context, req conversation.ToolRequestContent) conversation.ToolResponseContent {
	ctx, span := d.tracer.Start(ctx, "dispatch.tool_call")
	defer span.End()

	tools := d.registry.Tools()
	owner, ok := toolregistry.ResolveOwner(req.Name, tools)
	if !ok {
		return errResponse(req.ID, fmt.Sprintf("no extension owns tool %q", req.Name))
	}

	if owner == frontendOwner {
		if d.frontend == nil {
			return errResponse(req.ID, "no frontend tool caller registered for this session")
		}
		resp, err := d.frontend.CallFrontendTool(ctx, conversation.FrontendToolRequestContent{ID: req.ID, Name: req.Name, Args: req.Args})
		if err != nil {
			d.logger.Error(ctx, "frontend tool call failed", "tool", req.Name, "error", err)
			return errResponse(req.ID, err.Error())
		}
		return resp
	}

	client, ok := d.registry.Client(owner)
	if !ok {
		return errResponse(req.ID, fmt.Sprintf("extension %q not connected", owner))
	}

	local := req.Name
	for _, t := range tools {
		if t.Name == req.Name {
			local = t.LocalName
			break
		}
	}

	payload, err := json.Marshal(req.Args)
	if err != nil {
		return errResponse(req.ID, fmt.Sprintf("encode arguments: %v", err))
	}

	resp, err := client.CallTool(ctx, mcp.CallRequest{Suite: owner, Tool: local, Payload: payload})
	if err != nil {
		d.logger.Error(ctx, "tool call failed", "tool", req.Name, "owner", owner, "error", err)
		return errResponse(req.ID, err.Error())
	}
	return conversation.ToolResponseContent{
		ID:      req.ID,
		Success: true,
		Payload: []conversation.Content{conversation.Text(string(resp.Result))},
	}
}

// frontendOwner is the synthetic owner key toolregistry.ResolveOwner returns
// for tools registered as frontend-resident rather than MCP-backed.
const frontendOwner = "__frontend__"

func errResponse(id, msg string) conversation.ToolResponseContent {
	return conversation.ToolResponseContent{ID: id, Success: false, Error: msg}
}

// DispatchDeclined returns the synthetic tool response for a request that
// was denied or whose approval the user declined or cancelled: a successful
// response whose payload is the DeclinedResponse text.
func DispatchDeclined(requestID string) conversation.ToolResponseContent {
	return conversation.ToolResponseContent{
		ID:      requestID,
		Success: true,
		Payload: []conversation.Content{conversation.Text(DeclinedResponse)},
	}
}

// DispatchAll fans requests out over one goroutine each and joins their
// responses, preserving the invariant that each request gets exactly one
// response regardless of completion order (spec.md invariant 2: "tool
// responses are correlated by request id, never by position").
func (d *Dispatcher) DispatchAll(ctx context.Context, requests []conversation.ToolRequestContent) []conversation.ToolResponseContent {
	responses := make([]conversation.ToolResponseContent, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req conversation.ToolRequestContent) {
			defer wg.Done()
			responses[i] = d.Dispatch(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return responses
}
