package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(_ context.Context, _ string, _ map[string]interface{}) (interface{}, error) {
	return nil, nil
}

func testTool(name string, cat Category, mutates bool) *Tool {
	return &Tool{
		Name:        name,
		Category:    cat,
		Description: name,
		Mutates:     mutates,
		Schema:      map[string]interface{}{"type": "object"},
		Handler:     noopHandler,
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testTool("b_tool", CategoryMemories, false))
	reg.Register(testTool("a_tool", CategoryMemories, true))
	reg.Register(testTool("c_tool", CategoryProjects, false))

	require.Equal(t, 3, reg.Len())

	got, ok := reg.Get("a_tool")
	require.True(t, ok)
	assert.Equal(t, CategoryMemories, got.Category)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a_tool", all[0].Name)
	assert.Equal(t, "b_tool", all[1].Name)
	assert.Equal(t, "c_tool", all[2].Name)

	mem := reg.ByCategory(CategoryMemories)
	require.Len(t, mem, 2)
	assert.Equal(t, "a_tool", mem[0].Name)
}

func TestRegistryRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testTool("dup", CategoryMemories, false))

	assert.Panics(t, func() { reg.Register(testTool("dup", CategoryMemories, false)) })
	assert.Panics(t, func() { reg.Register(testTool("", CategoryMemories, false)) })
	assert.Panics(t, func() { reg.Register(testTool("bad_cat", Category("nope"), false)) })
	assert.Panics(t, func() {
		tl := testTool("no_handler", CategoryMemories, false)
		tl.Handler = nil
		reg.Register(tl)
	})
}

func TestToolRequiredScope(t *testing.T) {
	assert.Equal(t, "write:memories", testTool("x", CategoryMemories, true).RequiredScope())
	assert.Equal(t, "read:linking", testTool("y", CategoryLinking, false).RequiredScope())
}
