// Package conversation defines the core message and conversation model shared
// by the reply loop, extension registry, inspector chain, and dispatcher.
//
// This is a different layer than runtime/agent/model: model.Message is the
// provider-facing wire representation used to talk to a concrete LLM SDK;
// conversation.Message is the stable, provider-agnostic representation that
// the rest of the runtime operates on.
package conversation

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser identifies a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant identifies a message authored by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem identifies a message authored by the runtime itself
	// (system notes, compaction summaries).
	RoleSystem Role = "system"
)

type (
	// Content is a single content item carried by a Message. Exactly one of
	// the typed fields on a Content value is meaningful; Kind selects which.
	Content struct {
		Kind Kind

		// Text holds the payload for KindText.
		Text string

		// Image holds the payload for KindImage.
		Image *ImageContent

		// ToolRequest holds the payload for KindToolRequest.
		ToolRequest *ToolRequestContent

		// ToolResponse holds the payload for KindToolResponse.
		ToolResponse *ToolResponseContent

		// FrontendToolRequest holds the payload for KindFrontendToolRequest.
		FrontendToolRequest *FrontendToolRequestContent

		// ToolConfirmationRequest holds the payload for
		// KindToolConfirmationRequest.
		ToolConfirmationRequest *ToolConfirmationRequestContent
	}

	// Kind discriminates the variant carried by a Content value.
	Kind string

	// ImageContent is an inline image attachment.
	ImageContent struct {
		MimeType string
		Data     []byte
	}

	// ToolRequestContent is a model-issued request to invoke a tool.
	ToolRequestContent struct {
		ID   string
		Name string
		Args map[string]any
	}

	// ToolResponseContent is the result of a tool invocation, correlated to
	// a ToolRequestContent by ID.
	ToolResponseContent struct {
		ID      string
		Success bool
		// Payload holds result content on success, or error detail on failure.
		Payload []Content
		Error   string
	}

	// FrontendToolRequestContent is a tool call the UI/client must execute
	// itself rather than the runtime (e.g. local filesystem access from a
	// desktop client).
	FrontendToolRequestContent struct {
		ID   string
		Name string
		Args map[string]any
	}

	// ToolConfirmationRequestContent asks the user to approve, always-allow,
	// or deny a pending tool call.
	ToolConfirmationRequestContent struct {
		ID              string
		Name            string
		Args            map[string]any
		SecurityWarning string
	}

	// Message is a single turn authored by Role, carrying an ordered list of
	// content items.
	Message struct {
		Role      Role
		Content   []Content
		CreatedAt time.Time
	}

	// Conversation is an ordered list of messages with the invariant that
	// every tool-request content item has exactly one later tool-response
	// content item with a matching ID, unless the conversation was
	// terminated before dispatch (in which case the request is pending).
	Conversation struct {
		messages []Message
	}
)

const (
	// KindText identifies a plain-text content item.
	KindText Kind = "text"
	// KindImage identifies an inline image content item.
	KindImage Kind = "image"
	// KindToolRequest identifies a model-issued tool call.
	KindToolRequest Kind = "tool_request"
	// KindToolResponse identifies a tool call result.
	KindToolResponse Kind = "tool_response"
	// KindFrontendToolRequest identifies a tool call the client must execute.
	KindFrontendToolRequest Kind = "frontend_tool_request"
	// KindToolConfirmationRequest identifies a pending approval prompt.
	KindToolConfirmationRequest Kind = "tool_confirmation_request"
)

// Text constructs a text content item.
func Text(s string) Content { return Content{Kind: KindText, Text: s} }

// Image constructs an image content item.
func Image(mimeType string, data []byte) Content {
	return Content{Kind: KindImage, Image: &ImageContent{MimeType: mimeType, Data: data}}
}

// ToolRequest constructs a tool-request content item.
func ToolRequest(id, name string, args map[string]any) Content {
	return Content{Kind: KindToolRequest, ToolRequest: &ToolRequestContent{ID: id, Name: name, Args: args}}
}

// ToolResponseOK constructs a successful tool-response content item.
func ToolResponseOK(id string, payload []Content) Content {
	return Content{Kind: KindToolResponse, ToolResponse: &ToolResponseContent{ID: id, Success: true, Payload: payload}}
}

// ToolResponseErr constructs a failed tool-response content item.
func ToolResponseErr(id, errMsg string) Content {
	return Content{Kind: KindToolResponse, ToolResponse: &ToolResponseContent{ID: id, Success: false, Error: errMsg}}
}

// FrontendToolRequest constructs a frontend-tool-request content item.
func FrontendToolRequest(id, name string, args map[string]any) Content {
	return Content{Kind: KindFrontendToolRequest, FrontendToolRequest: &FrontendToolRequestContent{ID: id, Name: name, Args: args}}
}

// ToolConfirmationRequest constructs a tool-confirmation-request content item.
func ToolConfirmationRequest(id, name string, args map[string]any, warning string) Content {
	return Content{Kind: KindToolConfirmationRequest, ToolConfirmationRequest: &ToolConfirmationRequestContent{
		ID: id, Name: name, Args: args, SecurityWarning: warning,
	}}
}

// NewMessage constructs a Message with the given role and content items,
// stamping CreatedAt with now.
func NewMessage(role Role, now time.Time, content ...Content) Message {
	return Message{Role: role, Content: content, CreatedAt: now}
}

// ToolRequests returns the tool-request content items in m, in order.
func (m Message) ToolRequests() []ToolRequestContent {
	var out []ToolRequestContent
	for _, c := range m.Content {
		if c.Kind == KindToolRequest {
			out = append(out, *c.ToolRequest)
		}
	}
	return out
}

// LastText returns the text of the last KindText content item in m, and
// whether one was found.
func (m Message) LastText() (string, bool) {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if m.Content[i].Kind == KindText {
			return m.Content[i].Text, true
		}
	}
	return "", false
}

// New constructs an empty, validated Conversation.
func New() *Conversation { return &Conversation{} }

// NewUnvalidated constructs a Conversation from messages without checking the
// tool-request/tool-response pairing invariant. Used while reconstructing a
// conversation from a partial streaming transcript, where a trailing
// tool-request legitimately has no response yet.
func NewUnvalidated(messages []Message) *Conversation {
	return &Conversation{messages: append([]Message(nil), messages...)}
}

// Messages returns the ordered messages in the conversation. The returned
// slice must not be mutated by the caller.
func (c *Conversation) Messages() []Message { return c.messages }

// Append adds a message to the conversation.
func (c *Conversation) Append(m Message) { c.messages = append(c.messages, m) }

// Validate checks the tool-request/tool-response pairing invariant: every
// tool-request content item must have exactly one later tool-response
// content item with a matching ID.
func (c *Conversation) Validate() error {
	pending := map[string]bool{}
	for _, m := range c.messages {
		for _, item := range m.Content {
			switch item.Kind {
			case KindToolRequest:
				id := item.ToolRequest.ID
				if pending[id] {
					return fmt.Errorf("conversation: duplicate tool request id %q", id)
				}
				pending[id] = true
			case KindToolResponse:
				id := item.ToolResponse.ID
				if !pending[id] {
					return fmt.Errorf("conversation: tool response %q has no matching request", id)
				}
				delete(pending, id)
			}
		}
	}
	return nil
}

// PendingToolRequestIDs returns the IDs of tool requests with no matching
// tool response yet.
func (c *Conversation) PendingToolRequestIDs() []string {
	pending := map[string]bool{}
	var order []string
	for _, m := range c.messages {
		for _, item := range m.Content {
			switch item.Kind {
			case KindToolRequest:
				id := item.ToolRequest.ID
				if !pending[id] {
					pending[id] = true
					order = append(order, id)
				}
			case KindToolResponse:
				delete(pending, item.ToolResponse.ID)
			}
		}
	}
	var out []string
	for _, id := range order {
		if pending[id] {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep-enough copy of the conversation suitable for handing
// to a caller that must not observe future mutations (session manager's
// "hands back clones" ownership rule).
func (c *Conversation) Clone() *Conversation {
	return &Conversation{messages: append([]Message(nil), c.messages...)}
}

// ReplaceMessages overwrites the conversation's message list in place,
// preserving the *Conversation pointer identity so callers holding a
// reference observe the replacement (compaction's HistoryReplaced event).
func (c *Conversation) ReplaceMessages(messages []Message) {
	c.messages = append([]Message(nil), messages...)
}
