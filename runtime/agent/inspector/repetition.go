package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"goa.design/goa-ai/runtime/agent/conversation"
)

// Repetition denies a tool call once the identical (name, args) pair has
// been seen more than MaxRepetitions times within the session the inspector
// is scoped to (one Repetition instance per session — sessions must not
// share an instance).
type Repetition struct {
	// MaxRepetitions is the number of identical calls allowed before a Deny.
	// Default 3 (scenario S4: 4th identical call is denied).
	MaxRepetitions int

	mu     sync.Mutex
	counts map[string]int
}

// Name implements Inspector.
func (r *Repetition) Name() string { return "repetition" }

// Inspect implements Inspector.
func (r *Repetition) Inspect(_ context.Context, requests []conversation.ToolRequestContent, _ *conversation.Conversation) ([]Result, error) {
	max := r.MaxRepetitions
	if max <= 0 {
		max = 3
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}

	var results []Result
	for _, req := range requests {
		key := callKey(req.Name, req.Args)
		r.counts[key]++
		count := r.counts[key]
		if count > max {
			results = append(results, Result{
				ToolRequestID: req.ID,
				Action:        Action{Kind: ActionDeny},
				Reason:        fmt.Sprintf("exceeded maximum repetitions (%d > %d) for identical call", count, max),
				Confidence:    1.0,
				Inspector:     r.Name(),
			})
		}
	}
	return results, nil
}

func callKey(name string, args map[string]any) string {
	// Marshal errors are impossible for the map[string]any shapes tool
	// arguments take (no cycles, only JSON-representable values); fall back
	// to the name alone if one ever occurred so repetition tracking never
	// panics.
	data, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + "\x00" + string(data)
}
