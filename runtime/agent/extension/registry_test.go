package extension_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-ai/runtime/agent/extension"
	mcpruntime "goa.design/goa-ai/features/mcp/runtime"
	"goa.design/goa-ai/runtime/mcp"
)

type fakeClient struct {
	tools []mcpruntime.ToolInfo
}

func (f *fakeClient) ListTools(context.Context, string) ([]mcpruntime.ToolInfo, string, error) {
	return f.tools, "", nil
}

func (f *fakeClient) CallTool(context.Context, mcp.CallRequest) (mcp.CallResponse, error) {
	return mcp.CallResponse{}, nil
}

func (f *fakeClient) Close() error { return nil }

func platformWith(tools ...string) extension.PlatformFactory {
	infos := make([]mcpruntime.ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = mcpruntime.ToolInfo{Name: t}
	}
	return func(context.Context, extension.Config) (extension.Client, error) {
		return &fakeClient{tools: infos}, nil
	}
}

func TestRegistry_AddAndListTools(t *testing.T) {
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"developer": platformWith("shell", "text_editor"),
	}, nil, nil)

	key, err := reg.Add(context.Background(), extension.Config{
		Name: "Developer", Kind: extension.KindPlatform, PlatformFactory: "developer",
	})
	require.NoError(t, err)
	assert.Equal(t, "developer", key)

	tools := reg.Tools()
	require.Len(t, tools, 2)
	names := []string{tools[0].Name, tools[1].Name}
	assert.ElementsMatch(t, []string{"developer__shell", "developer__text_editor"}, names)
}

func TestRegistry_CacheVersionMonotonicAcrossMutations(t *testing.T) {
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"developer": platformWith("shell"),
	}, nil, nil)

	v0 := reg.CacheVersion()
	_, err := reg.Add(context.Background(), extension.Config{
		Name: "Developer", Kind: extension.KindPlatform, PlatformFactory: "developer",
	})
	require.NoError(t, err)
	v1 := reg.CacheVersion()
	assert.Greater(t, v1, v0)

	require.NoError(t, reg.Remove(context.Background(), "developer"))
	v2 := reg.CacheVersion()
	assert.Greater(t, v2, v1)
}

func TestRegistry_UnprefixedCollisionRejected(t *testing.T) {
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"summon":  platformWith("subagent"),
		"summon2": platformWith("subagent"),
	}, nil, nil)

	_, err := reg.Add(context.Background(), extension.Config{
		Name: "summon", Kind: extension.KindPlatform, PlatformFactory: "summon", Unprefixed: true,
	})
	require.NoError(t, err)

	_, err = reg.Add(context.Background(), extension.Config{
		Name: "summon2", Kind: extension.KindPlatform, PlatformFactory: "summon2", Unprefixed: true,
	})
	assert.ErrorIs(t, err, extension.ErrUnprefixedCollision)
}

func TestRegistry_DisableHidesTools(t *testing.T) {
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"developer": platformWith("shell"),
	}, nil, nil)
	_, err := reg.Add(context.Background(), extension.Config{
		Name: "Developer", Kind: extension.KindPlatform, PlatformFactory: "developer",
	})
	require.NoError(t, err)
	require.NoError(t, reg.Disable("developer"))
	assert.Empty(t, reg.Tools())
}

func TestRegistry_SubscribeReceivesInvalidation(t *testing.T) {
	reg := extension.NewRegistry(map[string]extension.PlatformFactory{
		"developer": platformWith("shell"),
	}, nil, nil)
	ch := reg.Subscribe()
	_, err := reg.Add(context.Background(), extension.Config{
		Name: "Developer", Kind: extension.KindPlatform, PlatformFactory: "developer",
	})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Greater(t, ev.Version, uint64(0))
	default:
		t.Fatal("expected a ToolsChanged event")
	}
}
