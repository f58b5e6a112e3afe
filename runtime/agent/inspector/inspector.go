// Package inspector implements the tool-call inspection chain: a sequence of
// inspectors consulted before dispatch, each emitting zero or more per-request
// decisions that the chain reduces to Allow / Deny / RequireApproval.
//
// Grounded on the shape of block/goose's tool_inspection module (not present
// verbatim in the retrieval pack; the Decide-per-input shape is adapted from
// agents/runtime/policy/policy.go, generalized from a single-engine decision
// into a multi-inspector reduction per spec.md §4.4).
package inspector

import (
	"context"

	"goa.design/goa-ai/runtime/agent/conversation"
)

type (
	// ActionKind discriminates an inspection decision.
	ActionKind string

	// Action is the decision an inspector renders for one tool request. Only
	// RequireApproval carries an optional human-readable warning.
	Action struct {
		Kind    ActionKind
		Warning string // set only when Kind == ActionRequireApproval
	}

	// Result is one inspector's decision about one tool request.
	Result struct {
		ToolRequestID string
		Action        Action
		Reason        string
		// Confidence is in [0,1]; inspectors that don't estimate a
		// confidence should leave it at 1.0.
		Confidence float64
		Inspector  string
		// FindingID correlates this result to a specific detector finding
		// (e.g. a security-scanner match) for later telemetry/approval
		// logging.
		FindingID string
	}

	// Inspector renders zero or more Results for the given tool requests,
	// given the conversation so far for context.
	Inspector interface {
		Name() string
		Inspect(ctx context.Context, requests []conversation.ToolRequestContent, history *conversation.Conversation) ([]Result, error)
	}

	// Chain runs inspectors in priority order and reduces their results per
	// request id.
	Chain struct {
		inspectors []Inspector
	}
)

const (
	// ActionAllow dispatches the request without prompting.
	ActionAllow ActionKind = "allow"
	// ActionDeny refuses the request without prompting.
	ActionDeny ActionKind = "deny"
	// ActionRequireApproval suspends the request pending a human decision.
	ActionRequireApproval ActionKind = "require_approval"
)

// NewChain constructs a Chain that runs inspectors in the given priority
// order (first inspector's Deny beats a later inspector's Allow; reduction
// itself is priority-independent — see Inspect — but insertion order is
// preserved for deterministic iteration/logging).
func NewChain(inspectors ...Inspector) *Chain {
	return &Chain{inspectors: inspectors}
}

// Inspect runs every inspector over requests and reduces their results per
// request id: Deny wins over RequireApproval wins over Allow; a request with
// no inspector opinion defaults to Allow (spec.md §4.4 "no-speak default").
// The returned map is keyed by tool-request id.
func (c *Chain) Inspect(ctx context.Context, requests []conversation.ToolRequestContent, history *conversation.Conversation) (map[string]Result, error) {
	reduced := make(map[string]Result, len(requests))
	for _, req := range requests {
		reduced[req.ID] = Result{ToolRequestID: req.ID, Action: Action{Kind: ActionAllow}, Inspector: "default"}
	}

	for _, insp := range c.inspectors {
		results, err := insp.Inspect(ctx, requests, history)
		if err != nil {
			// InspectorError: the chain fails open by skipping this
			// inspector's opinions rather than aborting; the error itself
			// is neither logged nor returned. Security's own
			// critical-path failures must be raised from within Inspect as
			// a Deny result, not as a Go error, precisely so fail-open here
			// cannot defeat a known-dangerous pattern.
			continue
		}
		for _, r := range results {
			current, ok := reduced[r.ToolRequestID]
			if !ok {
				continue
			}
			if rank(r.Action.Kind) > rank(current.Action.Kind) {
				reduced[r.ToolRequestID] = r
			}
		}
	}
	return reduced, nil
}

func rank(k ActionKind) int {
	switch k {
	case ActionDeny:
		return 2
	case ActionRequireApproval:
		return 1
	default:
		return 0
	}
}
