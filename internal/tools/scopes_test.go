package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "forgetful-backend/pkg/errors"
)

func scopeTestRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(testTool("create_memory", CategoryMemories, true))
	reg.Register(testTool("query_memory", CategoryMemories, false))
	reg.Register(testTool("get_memory", CategoryMemories, false))
	reg.Register(testTool("create_project", CategoryProjects, true))
	reg.Register(testTool("list_projects", CategoryProjects, false))
	reg.Register(testTool("link_memories", CategoryLinking, true))
	return reg
}

func TestResolvePermittedTools(t *testing.T) {
	reg := scopeTestRegistry()

	tests := []struct {
		name   string
		scopes string
		want   []string
	}{
		{"wildcard", "*", []string{
			"create_memory", "query_memory", "get_memory",
			"create_project", "list_projects", "link_memories",
		}},
		{"bare read", "read", []string{"query_memory", "get_memory", "list_projects"}},
		{"bare write", "write", []string{"create_memory", "create_project", "link_memories"}},
		{"read one category", "read:memories", []string{"query_memory", "get_memory"}},
		{"write one category", "write:linking", []string{"link_memories"}},
		{"union of tokens", "read:memories,write:projects", []string{
			"query_memory", "get_memory", "create_project",
		}},
		{"empty scope permits nothing", "", nil},
		{"whitespace tolerated", " read:projects , write:memories ", []string{
			"list_projects", "create_memory",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set, err := ResolvePermittedTools(tc.scopes, reg)
			require.NoError(t, err)
			assert.Len(t, set, len(tc.want))
			for _, name := range tc.want {
				assert.True(t, set[name], "expected %s to be permitted", name)
			}
		})
	}
}

func TestResolvePermittedToolsRejectsBadTokens(t *testing.T) {
	reg := scopeTestRegistry()

	_, err := ResolvePermittedTools("admin", reg)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Contains(t, err.Error(), "valid actions are read, write")

	_, err = ResolvePermittedTools("read:gadgets", reg)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Contains(t, err.Error(), "gadgets")
	assert.Contains(t, err.Error(), "memories")
}

func TestEffectivePermittedToolsIntersection(t *testing.T) {
	reg := scopeTestRegistry()

	// Session narrows the instance bound.
	set, err := EffectivePermittedTools("*", "read:memories", reg)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, set["query_memory"])
	assert.True(t, set["get_memory"])
	assert.False(t, set["create_memory"])

	// Session cannot widen past the instance bound.
	set, err = EffectivePermittedTools("read:memories", "*", reg)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.False(t, set["create_memory"])

	// Empty session scope means the instance bound applies alone.
	set, err = EffectivePermittedTools("write:projects", "", reg)
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.True(t, set["create_project"])

	// Disjoint scopes permit nothing.
	set, err = EffectivePermittedTools("read:memories", "write:projects", reg)
	require.NoError(t, err)
	assert.Empty(t, set)
}
