package runtime

import "context"

// ToolInfo describes one tool as returned by an MCP server's tools/list
// method.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type listToolsResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor"`
}

// ToolLister is implemented by callers that can enumerate the tools their
// MCP server exposes. Both StdioCaller and HTTPCaller implement it.
type ToolLister interface {
	ListTools(ctx context.Context, cursor string) (tools []ToolInfo, nextCursor string, err error)
}

// ListTools invokes tools/list over the stdio transport.
func (c *StdioCaller) ListTools(ctx context.Context, cursor string) ([]ToolInfo, string, error) {
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	var result listToolsResult
	if err := c.call(ctx, "tools/list", params, &result); err != nil {
		return nil, "", err
	}
	return result.Tools, result.NextCursor, nil
}

// ListTools invokes tools/list over the HTTP transport.
func (c *HTTPCaller) ListTools(ctx context.Context, cursor string) ([]ToolInfo, string, error) {
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	var result listToolsResult
	if err := c.transport.call(ctx, "tools/list", params, &result); err != nil {
		return nil, "", err
	}
	return result.Tools, result.NextCursor, nil
}
