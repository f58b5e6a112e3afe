package extension

import (
	"context"
	"fmt"

	mcpruntime "goa.design/goa-ai/features/mcp/runtime"
	"goa.design/goa-ai/runtime/mcp"
)

// builtinClient implements Client for a Config{Kind: KindBuiltin}: a fixed,
// statically known tool list with no live transport and no dispatchable
// behavior of its own (a builtin extension exists to declare tool presence;
// actual invocation is handled elsewhere, e.g. by the provider's native
// tool-use for model-internal builtins).
type builtinClient struct {
	tools []string
}

func newBuiltinClient(tools []string) *builtinClient {
	return &builtinClient{tools: tools}
}

func (c *builtinClient) ListTools(context.Context, string) ([]mcpruntime.ToolInfo, string, error) {
	infos := make([]mcpruntime.ToolInfo, len(c.tools))
	for i, name := range c.tools {
		infos[i] = mcpruntime.ToolInfo{Name: name}
	}
	return infos, "", nil
}

func (c *builtinClient) CallTool(context.Context, mcp.CallRequest) (mcp.CallResponse, error) {
	return mcp.CallResponse{}, fmt.Errorf("extension: builtin tools are not dispatched through the registry")
}

func (c *builtinClient) Close() error { return nil }
