package inspector

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"goa.design/goa-ai/runtime/agent/conversation"
)

// Classifier optionally refines the security inspector's confidence for a
// tool request beyond the static pattern table, e.g. an ML-based detector.
// Implementations must not fabricate a Deny for a call the pattern table
// finds safe; they may only adjust confidence on calls already flagged.
type Classifier interface {
	Classify(ctx context.Context, name string, args map[string]any, history *conversation.Conversation) (confidence float64, ok bool)
}

type dangerPattern struct {
	name    string
	match   *regexp.Regexp
	warning string
}

// Security scans a tool request's name and argument strings for dangerous
// patterns: recursive deletion, remote script execution, process
// substitution, and shell metacharacter abuse. It denies outright above a
// confidence threshold on a critical pattern, and otherwise requires
// approval with a human-readable warning.
//
// Per spec.md §7, the security inspector's own critical-path failures (an
// internal error while still facing an unambiguous dangerous literal) must
// remain fail-closed: Inspect never returns an error for this reason, only
// a Deny Result, so the chain's fail-open-on-InspectorError policy cannot
// suppress it.
type Security struct {
	Classifier Classifier

	// DenyThreshold is the confidence at or above which a critical match is
	// denied outright rather than merely flagged for approval. Default 0.9.
	DenyThreshold float64
}

var criticalPatterns = []dangerPattern{
	{
		name:    "recursive_delete",
		match:   regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f[a-z]*\s|\brm\s+-[a-z]*f[a-z]*r[a-z]*\s|\brmdir\s+/s\b|\bdel\s+/s\s+/q\b`),
		warning: "This command recursively deletes files or directories.",
	},
	{
		name:    "remote_script_exec",
		match:   regexp.MustCompile(`(?i)curl[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b|wget[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b|iwr\b.*\|\s*iex\b`),
		warning: "This command downloads and executes a remote script.",
	},
	{
		name:    "process_substitution",
		match:   regexp.MustCompile(`<\([^)]*\)`),
		warning: "This command uses process substitution, which can hide the real command being executed.",
	},
	{
		name:    "shell_chain_to_destructive",
		match:   regexp.MustCompile(`(?i)(;|&&|\|\|)\s*(rm|mkfs|dd)\b`),
		warning: "This command chains into a potentially destructive operation.",
	},
}

// Name implements Inspector.
func (s *Security) Name() string { return "security" }

// Inspect implements Inspector.
func (s *Security) Inspect(ctx context.Context, requests []conversation.ToolRequestContent, history *conversation.Conversation) ([]Result, error) {
	threshold := s.DenyThreshold
	if threshold <= 0 {
		threshold = 0.9
	}

	var results []Result
	for _, req := range requests {
		haystack := strings.ToLower(req.Name + " " + flattenArgs(req.Args))
		for _, p := range criticalPatterns {
			if !p.match.MatchString(haystack) {
				continue
			}
			confidence := 0.95
			if s.Classifier != nil {
				if c, ok := s.Classifier.Classify(ctx, req.Name, req.Args, history); ok {
					confidence = c
				}
			}
			findingID := fmt.Sprintf("security:%s:%s", p.name, req.ID)
			if confidence >= threshold {
				results = append(results, Result{
					ToolRequestID: req.ID,
					Action:        Action{Kind: ActionDeny},
					Reason:        fmt.Sprintf("matched dangerous pattern %q", p.name),
					Confidence:    confidence,
					Inspector:     s.Name(),
					FindingID:     findingID,
				})
			} else {
				results = append(results, Result{
					ToolRequestID: req.ID,
					Action:        Action{Kind: ActionRequireApproval, Warning: p.warning},
					Reason:        fmt.Sprintf("matched pattern %q below deny threshold", p.name),
					Confidence:    confidence,
					Inspector:     s.Name(),
					FindingID:     findingID,
				})
			}
			break // first matching pattern determines the verdict for this request
		}
	}
	return results, nil
}

func flattenArgs(args map[string]any) string {
	var b strings.Builder
	for _, v := range args {
		fmt.Fprintf(&b, "%v ", v)
	}
	return b.String()
}
