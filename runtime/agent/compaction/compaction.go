// Package compaction summarizes the oldest portion of a conversation's
// history to keep it within a model's context window, ported from
// haasonsaas-nexus's internal/compaction package: token estimation by
// character count, max-token chunking, and chunked summarization. Adapted
// here to operate directly on conversation.Conversation instead of a
// standalone Message slice. Chunk summaries are joined with blank lines
// rather than merged by a further summarization call, and there is no
// budget-based pruning. The gate compares the estimated token size of the
// whole conversation with an absolute token threshold; it does not read a
// session's usage counters and is not a fraction of a context limit.
package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goa.design/goa-ai/runtime/agent/conversation"
)

// timeNow is a seam so tests can stamp deterministic summary timestamps.
var timeNow = time.Now

const (
	// CharsPerToken is the approximate character-to-token ratio used for
	// estimation; matches the teacher's heuristic exactly.
	CharsPerToken = 4

	// DefaultSummaryFallback is used when there is no prior history to summarize.
	DefaultSummaryFallback = "No prior history."

	// DefaultMaxChunkTokens bounds a single summarization call's input size.
	DefaultMaxChunkTokens = 20000

	// DefaultKeepRecent is how many of the most recent messages are left
	// untouched by compaction (always preserved verbatim) so the model
	// retains immediate context for the in-flight turn.
	DefaultKeepRecent = 4
)

type (
	// Summarizer generates a natural-language summary of a slice of
	// conversation messages.
	Summarizer interface {
		Summarize(ctx context.Context, messages []conversation.Message) (string, error)
	}

	// Compactor rewrites the oldest portion of a conversation's history
	// into a single system summary message when the accumulated token
	// estimate exceeds ThresholdTokens. A zero-value Compactor with a nil
	// Summarizer falls back to a character-count-only summary (no LLM call),
	// which keeps compaction usable in tests and in environments without a
	// summarization model configured.
	Compactor struct {
		Summarizer Summarizer

		// ThresholdTokens triggers compaction once the conversation's
		// estimated token total exceeds it. Zero or negative disables the
		// threshold gate — the caller must still invoke Compact explicitly
		// (e.g. in response to a context_exceeded provider error).
		ThresholdTokens int

		// KeepRecent is how many trailing messages are left untouched.
		// Defaults to DefaultKeepRecent.
		KeepRecent int

		// MaxChunkTokens bounds one summarization call's input.
		MaxChunkTokens int
	}
)

// EstimateTokens approximates the token count of a message's text content.
func EstimateTokens(m conversation.Message) int {
	chars := 0
	for _, c := range m.Content {
		chars += len(c.Text)
		if c.ToolRequest != nil {
			chars += len(c.ToolRequest.Name) + estimateArgsChars(c.ToolRequest.Args)
		}
		if c.ToolResponse != nil {
			chars += len(c.ToolResponse.Error)
			for _, p := range c.ToolResponse.Payload {
				chars += len(p.Text)
			}
		}
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

func estimateArgsChars(args map[string]any) int {
	total := 0
	for k, v := range args {
		total += len(k) + len(fmt.Sprintf("%v", v))
	}
	return total
}

// EstimateConversationTokens sums EstimateTokens across every message.
func EstimateConversationTokens(conv *conversation.Conversation) int {
	total := 0
	for _, m := range conv.Messages() {
		total += EstimateTokens(m)
	}
	return total
}

// NeedsCompaction reports whether conv's accumulated token estimate exceeds
// c.ThresholdTokens. A non-positive threshold means compaction is never
// triggered automatically.
func (c *Compactor) NeedsCompaction(conv *conversation.Conversation) bool {
	if c.ThresholdTokens <= 0 {
		return false
	}
	return EstimateConversationTokens(conv) > c.ThresholdTokens
}

// Compact replaces the oldest messages in conv (all but the last KeepRecent)
// with a single system message summarizing them, in place. It is a no-op if
// there are not enough messages to compact.
func (c *Compactor) Compact(ctx context.Context, conv *conversation.Conversation) error {
	keep := c.KeepRecent
	if keep <= 0 {
		keep = DefaultKeepRecent
	}

	messages := conv.Messages()
	if len(messages) <= keep {
		return nil
	}

	toSummarize := messages[:len(messages)-keep]
	recent := messages[len(messages)-keep:]

	summary, err := c.summarize(ctx, toSummarize)
	if err != nil {
		return fmt.Errorf("compaction: %w", err)
	}

	rebuilt := make([]conversation.Message, 0, len(recent)+1)
	rebuilt = append(rebuilt, conversation.NewMessage(conversation.RoleSystem, timeNow(), conversation.Text(summary)))
	rebuilt = append(rebuilt, recent...)
	conv.ReplaceMessages(rebuilt)
	return nil
}

func (c *Compactor) summarize(ctx context.Context, messages []conversation.Message) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}

	maxChunk := c.MaxChunkTokens
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkTokens
	}
	chunks := chunkByMaxTokens(messages, maxChunk)

	if c.Summarizer == nil {
		return formatFallbackSummary(messages), nil
	}

	if len(chunks) == 1 {
		return c.Summarizer.Summarize(ctx, chunks[0])
	}

	chunkSummaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		s, err := c.Summarizer.Summarize(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("summarizing chunk %d: %w", i, err)
		}
		chunkSummaries = append(chunkSummaries, s)
	}
	return strings.Join(chunkSummaries, "\n\n"), nil
}

func chunkByMaxTokens(messages []conversation.Message, maxTokens int) [][]conversation.Message {
	if len(messages) == 0 {
		return nil
	}
	var result [][]conversation.Message
	var current []conversation.Message
	currentTokens := 0

	for _, m := range messages {
		t := EstimateTokens(m)
		if currentTokens+t > maxTokens && len(current) > 0 {
			result = append(result, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, m)
		currentTokens += t
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

func formatFallbackSummary(messages []conversation.Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[compacted %d prior messages]\n", len(messages)))
	for _, m := range messages {
		if text, ok := m.LastText(); ok {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, truncate(text, 200)))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
