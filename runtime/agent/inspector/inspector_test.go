package inspector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-ai/runtime/agent/conversation"
	"goa.design/goa-ai/runtime/agent/inspector"
	"goa.design/goa-ai/runtime/agent/permission"
)

func TestSecurity_DeniesRecursiveDelete(t *testing.T) {
	sec := &inspector.Security{}
	reqs := []conversation.ToolRequestContent{
		{ID: "1", Name: "shell__run", Args: map[string]any{"cmd": "rm -rf /"}},
	}
	results, err := sec.Inspect(context.Background(), reqs, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inspector.ActionDeny, results[0].Action.Kind)
}

func TestSecurity_AllowsSafeCall(t *testing.T) {
	sec := &inspector.Security{}
	reqs := []conversation.ToolRequestContent{
		{ID: "1", Name: "developer__echo", Args: map[string]any{"msg": "hi"}},
	}
	results, err := sec.Inspect(context.Background(), reqs, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRepetition_DeniesAfterMax(t *testing.T) {
	rep := &inspector.Repetition{MaxRepetitions: 3}
	req := conversation.ToolRequestContent{ID: "r", Name: "developer__list_files", Args: map[string]any{"path": "/"}}

	for i := 0; i < 3; i++ {
		req.ID = "r"
		results, err := rep.Inspect(context.Background(), []conversation.ToolRequestContent{req}, nil)
		require.NoError(t, err)
		assert.Empty(t, results, "call %d should not be denied", i+1)
	}

	results, err := rep.Inspect(context.Background(), []conversation.ToolRequestContent{req}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inspector.ActionDeny, results[0].Action.Kind)
	assert.Contains(t, results[0].Reason, "exceeded maximum repetitions")
}

func TestPermission_AlwaysAllowPersists(t *testing.T) {
	perm := &inspector.Permission{Default: permission.AskEachTime}
	req := conversation.ToolRequestContent{ID: "1", Name: "developer__echo"}

	results, err := perm.Inspect(context.Background(), []conversation.ToolRequestContent{req}, nil)
	require.NoError(t, err)
	assert.Equal(t, inspector.ActionRequireApproval, results[0].Action.Kind)

	perm.Record("developer__echo", permission.AlwaysAllow)

	for i := 0; i < 5; i++ {
		results, err = perm.Inspect(context.Background(), []conversation.ToolRequestContent{req}, nil)
		require.NoError(t, err)
		assert.Equal(t, inspector.ActionAllow, results[0].Action.Kind)
	}
}

func TestChain_DenyWinsOverApproval(t *testing.T) {
	perm := &inspector.Permission{Default: permission.AskEachTime}
	sec := &inspector.Security{}
	chain := inspector.NewChain(sec, perm)

	reqs := []conversation.ToolRequestContent{
		{ID: "1", Name: "shell__run", Args: map[string]any{"cmd": "rm -rf /"}},
	}
	reduced, err := chain.Inspect(context.Background(), reqs, nil)
	require.NoError(t, err)
	assert.Equal(t, inspector.ActionDeny, reduced["1"].Action.Kind)
}

func TestChain_DefaultsToAllow(t *testing.T) {
	chain := inspector.NewChain()
	reqs := []conversation.ToolRequestContent{{ID: "1", Name: "developer__echo"}}
	reduced, err := chain.Inspect(context.Background(), reqs, nil)
	require.NoError(t, err)
	assert.Equal(t, inspector.ActionAllow, reduced["1"].Action.Kind)
}
