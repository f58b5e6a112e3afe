package toolregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"goa.design/goa-ai/runtime/agent/toolregistry"
)

func tool(name, owner string) toolregistry.Tool {
	return toolregistry.Tool{Name: name, LocalName: name, Owner: owner}
}

func TestFilterByGroups_EmptyPassesAll(t *testing.T) {
	tools := []toolregistry.Tool{tool("developer__shell", "developer"), tool("memory__search", "memory")}
	assert.Len(t, toolregistry.FilterByGroups(tools, nil), 2)
}

func TestFilterByGroups_MCPWildcard(t *testing.T) {
	tools := []toolregistry.Tool{tool("developer__shell", "developer"), tool("github__pr_list", "github")}
	assert.Len(t, toolregistry.FilterByGroups(tools, []string{"mcp"}), 2)
}

func TestFilterByGroups_None(t *testing.T) {
	tools := []toolregistry.Tool{tool("developer__shell", "developer")}
	assert.Empty(t, toolregistry.FilterByGroups(tools, []string{"none"}))
}

func TestFilterByGroups_Command(t *testing.T) {
	tools := []toolregistry.Tool{
		tool("developer__shell", "developer"),
		tool("developer__text_editor", "developer"),
		tool("memory__search", "memory"),
	}
	result := toolregistry.FilterByGroups(tools, []string{"command"})
	assert.Equal(t, []toolregistry.Tool{tool("developer__shell", "developer")}, result)
}

func TestFilterByGroups_Orchestrator(t *testing.T) {
	tools := []toolregistry.Tool{
		tool("summon__delegate", "summon"),
		tool("extensionmanager__manage", "extensionmanager"),
		tool("developer__shell", "developer"),
	}
	assert.Len(t, toolregistry.FilterByGroups(tools, []string{"orchestrator"}), 2)
}

func TestFilterByGroups_UnknownMatchesOwner(t *testing.T) {
	tools := []toolregistry.Tool{tool("context7__lookup", "context7"), tool("developer__shell", "developer")}
	result := toolregistry.FilterByGroups(tools, []string{"context7"})
	assert.Equal(t, []toolregistry.Tool{tool("context7__lookup", "context7")}, result)
}

func TestFilterByExtensions(t *testing.T) {
	tools := []toolregistry.Tool{
		tool("developer__shell", "developer"),
		tool("memory__search", "memory"),
		tool("fetch__fetch", "fetch"),
	}
	result := toolregistry.FilterByExtensions(tools, []string{"developer", "fetch"})
	assert.Len(t, result, 2)
}

func TestExcludeExtensions(t *testing.T) {
	tools := []toolregistry.Tool{tool("developer__shell", "developer"), tool("memory__search", "memory")}
	result := toolregistry.ExcludeExtensions(tools, []string{"memory"})
	assert.Equal(t, []toolregistry.Tool{tool("developer__shell", "developer")}, result)
}

func TestResolveOwner_ByPrefix(t *testing.T) {
	owner, ok := toolregistry.ResolveOwner("developer__shell", nil)
	assert.True(t, ok)
	assert.Equal(t, "developer", owner)
}

func TestResolveOwner_ByMetadata(t *testing.T) {
	owner, ok := toolregistry.ResolveOwner("shell", []toolregistry.Tool{tool("shell", "developer")})
	assert.True(t, ok)
	assert.Equal(t, "developer", owner)
}

func TestResolveOwner_NotFound(t *testing.T) {
	_, ok := toolregistry.ResolveOwner("nonexistent", nil)
	assert.False(t, ok)
}

// TestFiltersCommute checks invariant 3 from spec.md §8: FilterByGroups and
// FilterByExtensions commute, since both keep a tool purely as a function of
// its own fields.
func TestFiltersCommute(t *testing.T) {
	tools := []toolregistry.Tool{
		tool("developer__shell", "developer"),
		tool("developer__text_editor", "developer"),
		tool("memory__search", "memory"),
		tool("fetch__fetch", "fetch"),
	}
	groups := []string{"command", "memory"}
	allowed := []string{"developer", "memory"}

	left := toolregistry.FilterByGroups(toolregistry.FilterByExtensions(tools, allowed), groups)
	right := toolregistry.FilterByExtensions(toolregistry.FilterByGroups(tools, groups), allowed)
	assert.ElementsMatch(t, left, right)
}

func TestCache_VersionMonotonic(t *testing.T) {
	c := toolregistry.NewCache()
	assert.Equal(t, uint64(0), c.Version())

	c.Set([]toolregistry.Tool{tool("a__b", "a")})
	v1 := c.Version()
	assert.Equal(t, uint64(1), v1)

	c.Invalidate()
	v2 := c.Version()
	assert.Equal(t, uint64(2), v2)

	c.Set(nil)
	assert.Equal(t, uint64(3), c.Version())
}

func TestCache_GetReflectsState(t *testing.T) {
	c := toolregistry.NewCache()
	_, ok := c.Get()
	assert.False(t, ok)

	c.Set([]toolregistry.Tool{tool("a__b", "a")})
	got, ok := c.Get()
	assert.True(t, ok)
	assert.Len(t, got, 1)

	c.Invalidate()
	_, ok = c.Get()
	assert.False(t, ok)
}
