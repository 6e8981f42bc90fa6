package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-collective/collective/pkg/catalog"
)

func TestMerge(t *testing.T) {
	high := []catalog.AgentDefinition{
		{Name: "reviewer", Source: "team", BodyTemplate: "team"},
	}
	low := []catalog.AgentDefinition{
		{Name: "writer", Source: "public", BodyTemplate: "w"},
		{Name: "reviewer", Source: "public", BodyTemplate: "public"},
	}

	merged, shadowed := Merge(high, low)
	require.Len(t, merged, 2)
	assert.Equal(t, "reviewer", merged[0].Name)
	assert.Equal(t, "team", merged[0].BodyTemplate)
	assert.Equal(t, "writer", merged[1].Name)
	assert.Equal(t, []Shadowed{{Name: "reviewer", Source: "public", By: "team"}}, shadowed)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]catalog.AgentDefinition{
		{Name: "writer"},
		{Name: "reviewer"},
	})

	def, err := r.Get("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", def.Name)

	_, err = r.Get("missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"reviewer", "writer"}, r.Names())
	assert.Len(t, r.All(), 2)
}
