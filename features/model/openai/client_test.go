package openai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/goa-ai/runtime/agent/model"
)

type stubChatClient struct {
	lastParams sdk.ChatCompletionNewParams
	resp       *sdk.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 128})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		},
	}

	stub.resp = &sdk.ChatCompletion{
		Choices: []sdk.ChatCompletionChoice{
			{
				Message:      sdk.ChatCompletionMessage{Content: "world"},
				FinishReason: "stop",
			},
		},
		Usage: sdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	resp, err := cl.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.Content) != 1 {
		t.Fatalf("expected 1 content message, got %d", len(resp.Content))
	}
	if got := resp.Content[0].Parts[0].(model.TextPart).Text; got != "world" {
		t.Fatalf("unexpected text %q", got)
	}
	if resp.StopReason != "stop" {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestComplete_ToolUse(t *testing.T) {
	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 128})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "call tool"}}},
		},
		Tools: []*model.ToolDefinition{
			{Name: "test.tool", Description: "test tool", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}

	toolParams, canon, _, err := encodeTools(req.Tools)
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if len(toolParams) != 1 {
		t.Fatalf("expected 1 encoded tool, got %d", len(toolParams))
	}
	sanitized := canon["test.tool"]
	if sanitized == "" {
		t.Fatalf("sanitizeToolName returned empty")
	}

	stub.resp = &sdk.ChatCompletion{
		Choices: []sdk.ChatCompletionChoice{
			{
				Message: sdk.ChatCompletionMessage{
					ToolCalls: []sdk.ChatCompletionMessageToolCall{
						{
							ID: "tool-1",
							Function: sdk.ChatCompletionMessageToolCallFunction{
								Name:      sanitized,
								Arguments: `{"x":1}`,
							},
						},
					},
				},
				FinishReason: "tool_calls",
			},
		},
	}

	resp, err := cl.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if string(call.Name) != "test.tool" {
		t.Fatalf("unexpected tool name %q", call.Name)
	}
	if call.ID != "tool-1" {
		t.Fatalf("unexpected tool ID %q", call.ID)
	}
	if string(call.Payload) != `{"x":1}` {
		t.Fatalf("unexpected payload %s", string(call.Payload))
	}
}

func TestComplete_RateLimited(t *testing.T) {
	stub := &stubChatClient{err: model.ErrRateLimited}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}},
		},
	}

	_, err = cl.Complete(context.Background(), req)
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestComplete_ContextExceeded(t *testing.T) {
	stub := &stubChatClient{
		err: errors.New("400 invalid_request_error: This model's maximum context length is 128000 tokens"),
	}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}},
		},
	}

	_, err = cl.Complete(context.Background(), req)
	if !model.IsContextExceeded(err) {
		t.Fatalf("expected IsContextExceeded, got %v", err)
	}
}

func TestComplete_StreamUnsupported(t *testing.T) {
	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cl.Stream(context.Background(), &model.Request{})
	if !errors.Is(err, model.ErrStreamingUnsupported) {
		t.Fatalf("expected ErrStreamingUnsupported, got %v", err)
	}
}
