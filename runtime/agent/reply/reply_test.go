package reply_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpruntime "goa.design/goa-ai/features/mcp/runtime"
	"goa.design/goa-ai/runtime/agent/approval"
	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/dispatch"
	"goa.design/goa-ai/runtime/agent/extension"
	"goa.design/goa-ai/runtime/agent/inspector"
	"goa.design/goa-ai/runtime/agent/model"
	"goa.design/goa-ai/runtime/agent/reply"
	"goa.design/goa-ai/runtime/agent/tools"
	"goa.design/goa-ai/runtime/mcp"
)

// scriptedClient returns a fixed sequence of responses, one per Complete call.
type scriptedClient struct {
	responses []*model.Response
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return c.responses[i], nil
}

func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, assertErr("not implemented")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeEchoClient struct {
	tools []mcpruntime.ToolInfo
}

func (f *fakeEchoClient) ListTools(context.Context, string) ([]mcpruntime.ToolInfo, string, error) {
	return f.tools, "", nil
}

func (f *fakeEchoClient) CallTool(ctx context.Context, req mcp.CallRequest) (mcp.CallResponse, error) {
	return mcp.CallResponse{Result: json.RawMessage(`"done"`)}, nil
}

func (f *fakeEchoClient) Close() error { return nil }

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	client := &fakeEchoClient{tools: []mcpruntime.ToolInfo{{Name: "echo"}}}
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"fake": func(ctx context.Context, cfg extension.Config) (extension.Client, error) { return client, nil },
	}, nil, nil)
	_, err := reg.Add(context.Background(), extension.Config{Name: "dev", Kind: extension.KindPlatform, PlatformFactory: "fake"})
	require.NoError(t, err)
	return dispatch.New(reg, nil, nil, nil)
}

func TestLoop_Run_NoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "hello"}}}}},
	}}
	loop := &reply.Loop{Client: client, Inspectors: inspector.NewChain(), Dispatcher: newDispatcher(t)}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text("hi")))

	err := loop.Run(context.Background(), conv, nil)
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	text, ok := msgs[1].LastText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestLoop_Run_DispatchesToolCallThenFinishes(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "t1", Name: tools.Ident("dev__echo"), Payload: json.RawMessage(`{}`)}}},
		{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "done"}}}}},
	}}
	loop := &reply.Loop{Client: client, Inspectors: inspector.NewChain(), Dispatcher: newDispatcher(t)}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text("run echo")))

	err := loop.Run(context.Background(), conv, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)

	msgs := conv.Messages()
	require.Len(t, msgs, 4) // user, assistant tool-request, tool-response, assistant final
	assert.Equal(t, conversation.KindToolResponse, msgs[2].Content[0].Kind)
	assert.True(t, msgs[2].Content[0].ToolResponse.Success)
}

func TestLoop_Run_DeniedToolGetsDeclinedResponse(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "t1", Name: tools.Ident("shell__run"), Payload: json.RawMessage(`{"cmd":"rm -rf /"}`)}}},
		{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "stopped"}}}}},
	}}
	chain := inspector.NewChain(&inspector.Security{})
	loop := &reply.Loop{Client: client, Inspectors: chain, Dispatcher: newDispatcher(t)}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text("delete everything")))

	err := loop.Run(context.Background(), conv, nil)
	require.NoError(t, err)

	msgs := conv.Messages()
	toolResp := msgs[2].Content[0].ToolResponse
	assert.True(t, toolResp.Success)
	assert.Equal(t, dispatch.DeclinedResponse, toolResp.Payload[0].Text)
}

// scriptedApproval always returns a fixed Action, recording every request it
// was asked to approve.
type scriptedApproval struct {
	action   approval.Action
	requests []approval.Request
}

func (a *scriptedApproval) RequestApproval(_ context.Context, _ string, req approval.Request) (approval.Action, error) {
	a.requests = append(a.requests, req)
	return a.action, nil
}

// recordingSink captures every Event emitted by the loop, in order.
type recordingSink struct{ events []reply.Event }

func (s *recordingSink) Emit(ev reply.Event) { s.events = append(s.events, ev) }

func TestLoop_Run_RequireApprovalEmitsConfirmationBeforeApproving(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "t1", Name: tools.Ident("dev__echo"), Payload: json.RawMessage(`{}`)}}},
		{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "done"}}}}},
	}}
	// A bare Permission inspector defaults every tool to RequireApproval.
	chain := inspector.NewChain(&inspector.Permission{})
	approver := &scriptedApproval{action: approval.ActionAllow}
	loop := &reply.Loop{Client: client, Inspectors: chain, Approval: approver, Dispatcher: newDispatcher(t)}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text("run echo")))

	sink := &recordingSink{}
	err := loop.Run(context.Background(), conv, sink)
	require.NoError(t, err)

	require.Len(t, approver.requests, 1)
	assert.Equal(t, "dev__echo", approver.requests[0].Type.ToolName)

	// Expected event order: assistant tool-request, confirmation request,
	// tool-response, final assistant message.
	require.Len(t, sink.events, 4)
	assert.Equal(t, reply.EventMessage, sink.events[0].Kind)
	assert.NotEmpty(t, sink.events[0].Message.ToolRequests())

	confirmEv := sink.events[1]
	require.Equal(t, reply.EventMessage, confirmEv.Kind)
	require.Len(t, confirmEv.Message.Content, 1)
	require.Equal(t, conversation.KindToolConfirmationRequest, confirmEv.Message.Content[0].Kind)
	confirmation := confirmEv.Message.Content[0].ToolConfirmationRequest
	require.NotNil(t, confirmation)
	assert.Equal(t, "t1", confirmation.ID)
	assert.Equal(t, "dev__echo", confirmation.Name)

	toolRespEv := sink.events[2]
	require.Equal(t, reply.EventMessage, toolRespEv.Kind)
	require.Len(t, toolRespEv.Message.Content, 1)
	require.Equal(t, conversation.KindToolResponse, toolRespEv.Message.Content[0].Kind)
	assert.True(t, toolRespEv.Message.Content[0].ToolResponse.Success)

	finalEv := sink.events[3]
	text, ok := finalEv.Message.LastText()
	require.True(t, ok)
	assert.Equal(t, "done", text)

	// The confirmation prompt is stream-only: it must not be appended to the
	// durable conversation history the model sees on the next turn.
	msgs := conv.Messages()
	for _, m := range msgs {
		for _, c := range m.Content {
			assert.NotEqual(t, conversation.KindToolConfirmationRequest, c.Kind)
		}
	}
}

func TestLoop_Run_RequireApprovalDeniedGetsDeclinedResponse(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "t1", Name: tools.Ident("dev__echo"), Payload: json.RawMessage(`{}`)}}},
		{Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "stopped"}}}}},
	}}
	chain := inspector.NewChain(&inspector.Permission{})
	approver := &scriptedApproval{action: approval.ActionDeny}
	loop := &reply.Loop{Client: client, Inspectors: chain, Approval: approver, Dispatcher: newDispatcher(t)}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text("run echo")))

	err := loop.Run(context.Background(), conv, nil)
	require.NoError(t, err)

	msgs := conv.Messages()
	toolResp := msgs[2].Content[0].ToolResponse
	assert.True(t, toolResp.Success)
	assert.Equal(t, dispatch.DeclinedResponse, toolResp.Payload[0].Text)
}
