// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates goa-ai requests into
// openai.ChatCompletionNewParams calls using github.com/openai/openai-go and
// maps responses (text, tool calls, usage) back into the generic model
// structures, mirroring the anthropic adapter's translation shape.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"goa.design/goa-ai/runtime/agent/model"
	"goa.design/goa-ai/runtime/agent/tools"
)

type (
	// ChatClient captures the subset of the OpenAI SDK client used by the
	// adapter. It is satisfied by the Chat.Completions service so callers can
	// pass either a real client or a mock in tests.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// DefaultModel is the model identifier used when model.Request.Model
		// is empty. Use the typed sdk.ChatModel constants or an identifier
		// from OpenAI's model catalogue.
		DefaultModel string

		// HighModel is used when Request.ModelClass is ModelClassHighReasoning
		// and Model is empty.
		HighModel string

		// SmallModel is used when Request.ModelClass is ModelClassSmall and
		// Model is empty.
		SmallModel string

		// MaxTokens sets the default completion cap when a request does not
		// specify MaxTokens.
		MaxTokens int

		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client on top of the OpenAI Chat Completions API.
	Client struct {
		chat         ChatClient
		defaultModel string
		highModel    string
		smallModel   string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the provided chat client and
// configuration options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client. It
// reads OPENAI_API_KEY and related defaults from the environment via
// sdk.NewClient's option defaults.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete issues a non-streaming Chat Completions request and translates the
// response into model-friendly structures (assistant messages + tool calls).
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, nameMap, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		if isContextExceeded(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrContextExceeded, err)
		}
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	return translateResponse(resp, nameMap)
}

// Stream reports that OpenAI Chat Completions streaming is not yet wired
// through this adapter. Callers fall back to Complete.
func (c *Client) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.ChatCompletionNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, nil, errors.New("openai: model identifier is required")
	}
	toolParams, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: msgs,
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = param.NewOpt(t)
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice, canonToSan, req.Tools)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	return &params, sanToCanon, nil
}

// resolveModelID decides which concrete model ID to use based on
// Request.Model and Request.ModelClass, mirroring the anthropic adapter.
func (c *Client) resolveModelID(req *model.Request) string {
	if s := req.Model; s != "" {
		return s
	}
	switch string(req.ModelClass) {
	case string(model.ModelClassHighReasoning):
		if c.highModel != "" {
			return c.highModel
		}
	case string(model.ModelClassSmall):
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func encodeMessages(msgs []*model.Message, canonToSan map[string]string) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role { //nolint:exhaustive
		case model.ConversationRoleSystem:
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					out = append(out, sdk.SystemMessage(v.Text))
				}
			}
		case model.ConversationRoleUser:
			msg, err := encodeUserMessage(m, canonToSan)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				out = append(out, *msg)
			}
		case model.ConversationRoleAssistant:
			msg, err := encodeAssistantMessage(m, canonToSan)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				out = append(out, *msg)
			}
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one user/assistant message is required")
	}
	return out, nil
}

// encodeUserMessage renders a user message's text parts, joined by newlines,
// as one user message. Chat Completions represents tool results as separate
// "tool" role messages rather than as content blocks; this adapter does not
// encode them, and a user message carrying a tool result is rejected with an
// error.
func encodeUserMessage(m *model.Message, canonToSan map[string]string) (*sdk.ChatCompletionMessageParamUnion, error) {
	var text strings.Builder
	var hasToolResult bool
	for _, part := range m.Parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(v.Text)
			}
		case model.ToolResultPart:
			hasToolResult = true
		}
	}
	if hasToolResult {
		return nil, errors.New("openai: tool results must be encoded as tool messages, not user content")
	}
	if text.Len() == 0 {
		return nil, nil
	}
	msg := sdk.UserMessage(text.String())
	return &msg, nil
}

func encodeAssistantMessage(m *model.Message, canonToSan map[string]string) (*sdk.ChatCompletionMessageParamUnion, error) {
	var text strings.Builder
	var calls []sdk.ChatCompletionMessageToolCallParam
	for _, part := range m.Parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(v.Text)
			}
		case model.ToolUsePart:
			if v.Name == "" {
				return nil, errors.New("openai: tool_use part missing name")
			}
			sanitized, ok := canonToSan[v.Name]
			if !ok || sanitized == "" {
				return nil, fmt.Errorf("openai: tool_use in messages references %q which is not in the current tool configuration", v.Name)
			}
			args, err := json.Marshal(v.Input)
			if err != nil {
				return nil, fmt.Errorf("openai: marshal tool_use input for %q: %w", v.Name, err)
			}
			calls = append(calls, sdk.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: sdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      sanitized,
					Arguments: string(args),
				},
			})
		}
	}
	if text.Len() == 0 && len(calls) == 0 {
		return nil, nil
	}
	msg := sdk.AssistantMessage(text.String())
	if len(calls) > 0 && msg.OfAssistant != nil {
		msg.OfAssistant.ToolCalls = calls
	}
	return &msg, nil
}

func encodeTools(defs []*model.ToolDefinition) ([]sdk.ChatCompletionToolParam, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))

	for _, def := range defs {
		if def == nil {
			continue
		}
		canonical := def.Name
		if canonical == "" {
			continue
		}
		sanitized := sanitizeToolName(canonical)
		if prev, ok := sanToCanon[sanitized]; ok && prev != canonical {
			return nil, nil, nil, fmt.Errorf(
				"openai: tool name %q sanitizes to %q which collides with %q",
				canonical, sanitized, prev,
			)
		}
		sanToCanon[sanitized] = canonical
		canonToSan[canonical] = sanitized
		if def.Description == "" {
			return nil, nil, nil, fmt.Errorf("openai: tool %q is missing description", canonical)
		}
		schema, err := toolParameters(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("openai: tool %q schema: %w", canonical, err)
		}
		toolList = append(toolList, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        sanitized,
				Description: param.NewOpt(def.Description),
				Parameters:  schema,
			},
		})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return toolList, canonToSan, sanToCanon, nil
}

func toolParameters(schema any) (sdk.FunctionParameters, error) {
	if schema == nil {
		return nil, nil
	}
	var raw json.RawMessage
	switch v := schema.(type) {
	case json.RawMessage:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return sdk.FunctionParameters(m), nil
}

func encodeToolChoice(choice *model.ToolChoice, canonToSan map[string]string, defs []*model.ToolDefinition) (sdk.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", model.ToolChoiceModeAuto:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}, nil
	case model.ToolChoiceModeNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}, nil
	case model.ToolChoiceModeAny:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}, nil
	case model.ToolChoiceModeTool:
		if choice.Name == "" {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: tool choice mode %q requires a tool name", choice.Mode)
		}
		if !hasToolDefinition(defs, choice.Name) {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: tool choice name %q does not match any tool", choice.Name)
		}
		sanitized, ok := canonToSan[choice.Name]
		if !ok || sanitized == "" {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: tool choice name %q does not match any tool", choice.Name)
		}
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: sanitized},
			},
		}, nil
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func hasToolDefinition(defs []*model.ToolDefinition, name string) bool {
	for _, def := range defs {
		if def != nil && def.Name == name {
			return true
		}
	}
	return false
}

// sanitizeToolName maps a canonical "toolset.tool" identifier to the
// characters OpenAI's function-name constraints allow ([a-zA-Z0-9_-], <= 64
// chars), the same way the anthropic adapter does.
func sanitizeToolName(in string) string {
	if in == "" {
		return in
	}
	base := in
	if idx := strings.LastIndex(in, "."); idx >= 0 && idx+1 < len(in) {
		base = in[idx+1:]
	}
	out := make([]rune, 0, len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

func isRateLimited(err error) bool {
	return err != nil && errors.Is(err, model.ErrRateLimited)
}

// contextExceededSignatures are substrings the OpenAI API is known to include
// in a 400 invalid_request_error message when the prompt plus max_tokens
// overruns the model's context window.
var contextExceededSignatures = []string{
	"maximum context length",
	"context_length_exceeded",
	"reduce the length of the messages",
}

func isContextExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrContextExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range contextExceededSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func translateResponse(resp *sdk.ChatCompletion, nameMap map[string]string) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	out := &model.Response{}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = append(out.Content, model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: choice.Message.Content}},
		})
	}
	for _, call := range choice.Message.ToolCalls {
		name := call.Function.Name
		if canonical, ok := nameMap[name]; ok {
			name = canonical
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:    tools.Ident(name),
			Payload: json.RawMessage(call.Function.Arguments),
			ID:      call.ID,
		})
	}
	u := resp.Usage
	if u.PromptTokens != 0 || u.CompletionTokens != 0 {
		out.Usage = model.TokenUsage{
			InputTokens:  int(u.PromptTokens),
			OutputTokens: int(u.CompletionTokens),
			TotalTokens:  int(u.TotalTokens),
		}
	}
	out.StopReason = string(choice.FinishReason)
	return out, nil
}
