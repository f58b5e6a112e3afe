// Package reply implements the agent's turn-by-turn reply loop: render the
// conversation to the model, run any tool calls the model requests through
// the inspector chain and dispatcher, append results, and repeat until the
// model produces a final text response or the turn is cancelled.
//
// Grounded on runtime/agent/runtime/runtime.go's RunTurn loop shape, adapted
// from Temporal-workflow orchestration down to a plain blocking call per
// spec.md §4.7 (no durable-execution requirement in this module).
package reply

import (
	"encoding/json"

	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/model"
)

// toModelRequest renders a conversation plus the currently available tool
// definitions into a model.Request.
func toModelRequest(conv *conversation.Conversation, toolDefs []*model.ToolDefinition, opts Options) *model.Request {
	req := &model.Request{
		Model:       opts.Model,
		ModelClass:  opts.ModelClass,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tools:       toolDefs,
	}
	for _, m := range conv.Messages() {
		req.Messages = append(req.Messages, toModelMessage(m))
	}
	return req
}

func toModelMessage(m conversation.Message) *model.Message {
	mm := &model.Message{Role: toModelRole(m.Role)}
	for _, c := range m.Content {
		switch c.Kind {
		case conversation.KindText:
			mm.Parts = append(mm.Parts, model.TextPart{Text: c.Text})
		case conversation.KindImage:
			mm.Parts = append(mm.Parts, model.ImagePart{Format: model.ImageFormat(c.Image.MimeType), Bytes: c.Image.Data})
		case conversation.KindToolRequest:
			mm.Parts = append(mm.Parts, model.ToolUsePart{ID: c.ToolRequest.ID, Name: c.ToolRequest.Name, Input: c.ToolRequest.Args})
		case conversation.KindToolResponse:
			mm.Parts = append(mm.Parts, model.ToolResultPart{
				ToolUseID: c.ToolResponse.ID,
				Content:   toolResultContent(*c.ToolResponse),
				IsError:   !c.ToolResponse.Success,
			})
		}
	}
	return mm
}

func toolResultContent(r conversation.ToolResponseContent) any {
	if !r.Success {
		return r.Error
	}
	var texts []string
	for _, p := range r.Payload {
		if p.Kind == conversation.KindText {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) == 1 {
		return texts[0]
	}
	return texts
}

func toModelRole(r conversation.Role) model.ConversationRole {
	switch r {
	case conversation.RoleUser:
		return model.ConversationRoleUser
	case conversation.RoleAssistant:
		return model.ConversationRoleAssistant
	default:
		return model.ConversationRoleSystem
	}
}

// fromModelResponse converts a model.Response into conversation content
// items: assistant text first, then one tool-request item per requested
// tool call. Parts other than text, such as thinking, are dropped.
func fromModelResponse(resp *model.Response) []conversation.Content {
	var out []conversation.Content
	for _, msg := range resp.Content {
		for _, p := range msg.Parts {
			if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
				out = append(out, conversation.Text(tp.Text))
			}
		}
	}
	for _, tc := range resp.ToolCalls {
		out = append(out, conversation.ToolRequest(tc.ID, string(tc.Name), decodeArgs(tc.Payload)))
	}
	return out
}

func decodeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"_raw": string(raw)}
	}
	return args
}
