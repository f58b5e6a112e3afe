// Package subagent implements the "subagent" platform tool: an unprefixed
// builtin tool that lets a model delegate a task to a nested, independently
// looping agent and receive its result as a single tool response.
//
// Grounded on
// original_source/crates/goose/src/agents/subagent_execution_tool/subagent_tool.rs:
// the SubagentParams schema (instructions/subagent_type/name/return_last_only),
// the three fixed persona system prompts, and "always default subagent_type to
// Default, always default return_last_only to true" are ported verbatim. The
// nested-loop execution itself is grounded on runtime/agent/reply.Loop, reused
// rather than reimplemented, since a subagent turn is structurally identical
// to a top-level turn against a smaller, scoped tool set.
package subagent

import (
	"context"
	"fmt"
	"time"

	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/reply"
)

// ToolName is the unprefixed platform tool name models call to delegate work.
const ToolName = "subagent"

// Type selects a subagent's persona/system prompt.
type Type string

const (
	// TypeDefault is a general-purpose subagent persona.
	TypeDefault Type = "default"
	// TypeInvestigator is tuned for research/investigation tasks.
	TypeInvestigator Type = "investigator"
	// TypeCritic is tuned for reviewing/critiquing prior work.
	TypeCritic Type = "critic"
)

// Params is the JSON schema the subagent tool accepts, matching
// SubagentParams field-for-field. ReturnLastOnly is a pointer so the JSON
// default (true) can be distinguished from an explicit false, the way the
// Rust struct's #[serde(default = "default_return_last_only")] does.
type Params struct {
	Instructions   string `json:"instructions"`
	SubagentType   Type   `json:"subagent_type,omitempty"`
	Name           string `json:"name,omitempty"`
	ReturnLastOnly *bool  `json:"return_last_only,omitempty"`
}

// ParamsSchema is the JSON Schema advertised for the subagent tool's input,
// mirroring the Rust struct's field set and defaults.
var ParamsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"instructions": map[string]any{
			"type":        "string",
			"description": "The natural language instructions for the subagent to execute.",
		},
		"subagent_type": map[string]any{
			"type":        "string",
			"enum":        []string{"default", "investigator", "critic"},
			"description": `Optional specialized persona/type for the subagent. If omitted, uses "default".`,
		},
		"name": map[string]any{
			"type":        "string",
			"description": "Optional name for the subagent task (for logging/identification).",
		},
		"return_last_only": map[string]any{
			"type":        "boolean",
			"default":     true,
			"description": "If true, returns only the final result. Set to false for the full conversation history.",
		},
	},
	"required": []string{"instructions"},
}

// Description is the tool description shown to the model.
const Description = "Delegate a task to an autonomous subagent. Returns the result immediately. " +
	"Use this tool to offload complex work (research, coding, critique) to a specialized agent. " +
	"Defaults to 'return_last_only=true' for concise results."

// systemPrompts holds the three fixed persona templates as Go string
// constants (ported content, not file-loaded, since this module has no
// prompt_template rendering pipeline to depend on).
var systemPrompts = map[Type]string{
	TypeDefault: "You are a focused subagent executing a single delegated task. " +
		"Complete the instructions precisely, use the tools available to you, and " +
		"report your result clearly. Do not ask the user clarifying questions; make " +
		"reasonable assumptions and note them in your final answer.",
	TypeInvestigator: "You are an investigative subagent. Your job is to explore, gather " +
		"evidence, and report findings accurately. Prefer reading and searching tools over " +
		"destructive ones. Cite the specific files, commands, or data that support each claim " +
		"in your final answer.",
	TypeCritic: "You are a critical-review subagent. Evaluate the work described in your " +
		"instructions for correctness, completeness, and risk. Be specific: cite the exact " +
		"location of any issue you find. Do not rewrite the work yourself unless asked to.",
}

// SystemPrompt returns the persona system prompt for t, falling back to
// TypeDefault for an unrecognized or empty type (mirrors
// load_system_prompt's fallback-to-default behavior).
func SystemPrompt(t Type) string {
	if p, ok := systemPrompts[t]; ok {
		return p
	}
	return systemPrompts[TypeDefault]
}

// Normalize fills in SubagentType and ReturnLastOnly defaults the way the
// Rust #[serde(default)] attributes do.
func (p Params) Normalize() Params {
	if p.SubagentType == "" {
		p.SubagentType = TypeDefault
	}
	if p.ReturnLastOnly == nil {
		t := true
		p.ReturnLastOnly = &t
	}
	return p
}

// returnLastOnly reads the normalized boolean value.
func (p Params) returnLastOnly() bool {
	return p.ReturnLastOnly == nil || *p.ReturnLastOnly
}

// Runner executes a delegated task by running a nested reply.Loop to
// completion against a fresh conversation seeded with the persona system
// prompt and the caller's instructions.
type Runner struct {
	// NewLoop constructs a reply.Loop scoped to the subagent's own extension
	// set (typically a subset of the parent session's tools, per spec.md's
	// sub-agent tool-scoping rule). Required.
	NewLoop func(ctx context.Context, p Params) (*reply.Loop, error)
}

// Run executes params as a delegated task and returns the text to surface to
// the parent conversation as the tool's response: the last assistant message
// when ReturnLastOnly, or the full transcript rendered as text otherwise
// (invariant 6: "return_last_only governs only the tool response payload, the
// nested session's full history is always retained for inspection/logging").
func (r *Runner) Run(ctx context.Context, params Params) (string, *conversation.Conversation, error) {
	params = params.Normalize()
	if params.Instructions == "" {
		return "", nil, fmt.Errorf("subagent: instructions is required")
	}

	loop, err := r.NewLoop(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("subagent: construct nested loop: %w", err)
	}

	conv := conversation.New()
	conv.Append(conversation.NewMessage(conversation.RoleSystem, time.Now(), conversation.Text(SystemPrompt(params.SubagentType))))
	conv.Append(conversation.NewMessage(conversation.RoleUser, time.Now(), conversation.Text(params.Instructions)))

	if err := loop.Run(ctx, conv, nil); err != nil {
		return "", conv, fmt.Errorf("subagent: run: %w", err)
	}

	if params.returnLastOnly() {
		msgs := conv.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role != conversation.RoleAssistant {
				continue
			}
			if text, ok := msgs[i].LastText(); ok {
				return text, conv, nil
			}
		}
		return "", conv, nil
	}

	return renderTranscript(conv), conv, nil
}

func renderTranscript(conv *conversation.Conversation) string {
	var out string
	for _, m := range conv.Messages() {
		if text, ok := m.LastText(); ok {
			out += fmt.Sprintf("[%s] %s\n", m.Role, text)
		}
	}
	return out
}
