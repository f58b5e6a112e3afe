package inspector

import (
	"context"
	"sync"

	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/permission"
)

// Permission maps each tool name's current permission.Level to an inspection
// Action, and persists AlwaysAllow decisions for the lifetime of the
// instance (one Permission per session). Invariant 5: once a tool is
// recorded AlwaysAllow, Inspect never again returns RequireApproval for it.
type Permission struct {
	// Default is the level applied to a tool with no recorded decision.
	// Default permission.AskEachTime.
	Default permission.Level

	mu     sync.Mutex
	levels map[string]permission.Level
}

// Name implements Inspector.
func (p *Permission) Name() string { return "permission" }

// Inspect implements Inspector.
func (p *Permission) Inspect(_ context.Context, requests []conversation.ToolRequestContent, _ *conversation.Conversation) ([]Result, error) {
	def := p.Default
	if def == "" {
		def = permission.AskEachTime
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var results []Result
	for _, req := range requests {
		level := def
		if l, ok := p.levels[req.Name]; ok {
			level = l
		}
		results = append(results, Result{
			ToolRequestID: req.ID,
			Action:        levelToAction(level),
			Reason:        "permission level " + string(level),
			Confidence:    1.0,
			Inspector:     p.Name(),
		})
	}
	return results, nil
}

func levelToAction(level permission.Level) Action {
	switch level {
	case permission.Allow, permission.AlwaysAllow:
		return Action{Kind: ActionAllow}
	case permission.Deny:
		return Action{Kind: ActionDeny}
	default:
		return Action{Kind: ActionRequireApproval}
	}
}

// Record stores the user's decision for a tool name. AlwaysAllow and Deny
// persist across future calls within this Permission instance; Allow (a
// one-time approval) is recorded as AlwaysAllow-equivalent here too, since
// the inspector only tracks per-tool state, not per-call state — a plain
// one-time Allow is handled by the reply loop dispatching immediately
// without calling Record.
func (p *Permission) Record(toolName string, level permission.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.levels == nil {
		p.levels = make(map[string]permission.Level)
	}
	p.levels[toolName] = level
}

// Level returns the currently recorded level for toolName, and whether one
// has been recorded.
func (p *Permission) Level(toolName string) (permission.Level, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.levels[toolName]
	return l, ok
}
