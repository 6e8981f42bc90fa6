package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-collective/collective/pkg/catalog"
)

func writeAgent(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseMarkdown(t *testing.T) {
	content := `---
name: frontend-developer
description: Builds user interfaces
requiredSkillIds: [react, zustand]
---

# {{ .Agent.Name }}
{{ range .Skills }}{{ .Content }}{{ end }}
`
	def, err := ParseMarkdown(content)
	require.NoError(t, err)

	assert.Equal(t, "frontend-developer", def.Name)
	assert.Equal(t, "Builds user interfaces", def.Description)
	assert.Equal(t, []catalog.SkillID{"react", "zustand"}, def.RequiredSkillIDs)
	assert.Equal(t, "# {{ .Agent.Name }}\n{{ range .Skills }}{{ .Content }}{{ end }}\n", def.BodyTemplate)
}

func TestParseMarkdownSkillListForms(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []catalog.SkillID
	}{
		{
			name:     "comma separated",
			content:  "---\nname: a\nskills: react, zustand\n---\nbody\n",
			expected: []catalog.SkillID{"react", "zustand"},
		},
		{
			name:     "snake case key",
			content:  "---\nname: a\nrequired_skill_ids:\n  - hono\n---\nbody\n",
			expected: []catalog.SkillID{"hono"},
		},
		{
			name:     "none",
			content:  "---\nname: a\n---\nbody\n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseMarkdown(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, def.RequiredSkillIDs)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := writeAgent(t, dir, "backend.yaml", `
name: backend-developer
requiredSkillIds: [hono]
bodyTemplate: |
  You write servers.
`)
		def, err := ParseFile(path, "team")
		require.NoError(t, err)
		assert.Equal(t, "backend-developer", def.Name)
		assert.Equal(t, []catalog.SkillID{"hono"}, def.RequiredSkillIDs)
		assert.Equal(t, "You write servers.\n", def.BodyTemplate)
		assert.Equal(t, "team", def.Source)
		assert.Equal(t, path, def.Path)
	})

	t.Run("name defaults to file name", func(t *testing.T) {
		path := writeAgent(t, dir, "tester.md", "You test things.\n")
		def, err := ParseFile(path, "team")
		require.NoError(t, err)
		assert.Equal(t, "tester", def.Name)
		assert.Equal(t, "You test things.\n", def.BodyTemplate)
	})

	t.Run("empty body", func(t *testing.T) {
		path := writeAgent(t, dir, "empty.md", "---\nname: empty\n---\n")
		_, err := ParseFile(path, "team")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "body template cannot be empty")
	})

	t.Run("invalid skill id", func(t *testing.T) {
		path := writeAgent(t, dir, "bad.md", "---\nskills: [Not_Valid]\n---\nbody\n")
		_, err := ParseFile(path, "team")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid required skill id")
	})

	t.Run("invalid name", func(t *testing.T) {
		for _, name := range []string{"../escaped", "nested/agent", "Reviewer", "a b"} {
			path := writeAgent(t, dir, "named.md", "---\nname: "+name+"\n---\nbody\n")
			_, err := ParseFile(path, "team")
			require.Error(t, err, name)
			assert.Contains(t, err.Error(), "invalid agent name", name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(dir, "missing.md"), "team")
		assert.Error(t, err)
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "a.md", "---\nname: alpha\n---\nfirst\n")
	writeAgent(t, dir, "nested/b.yaml", "name: beta\nbodyTemplate: second\n")
	writeAgent(t, dir, "nested/z.md", "---\nname: alpha\n---\nduplicate\n")
	writeAgent(t, dir, "broken.md", "---\nname: broken\n---\n")
	writeAgent(t, dir, "README.md", "docs")
	writeAgent(t, dir, "notes.txt", "ignored")

	defs, warnings := LoadDir(context.Background(), dir, "team")

	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "first\n", defs[0].BodyTemplate)
	assert.Equal(t, "beta", defs[1].Name)

	require.Len(t, warnings, 2)
	assert.Equal(t, "broken.md", warnings[0].Path)
	assert.Equal(t, "nested/z.md", warnings[1].Path)
	assert.Contains(t, warnings[1].Message, "already defined in a.md")
}

func TestAgentProcessor(t *testing.T) {
	repoDir := t.TempDir()
	homeDir := t.TempDir()
	writeAgent(t, repoDir, "reviewer.md", "---\nname: reviewer\n---\nrepo reviewer\n")
	writeAgent(t, homeDir, "reviewer.md", "---\nname: reviewer\n---\nhome reviewer\n")
	writeAgent(t, homeDir, "writer.md", "---\nname: writer\n---\nhome writer\n")

	processor, err := NewAgentProcessor(WithAgentDirs(repoDir, homeDir), WithSourceName("local"))
	require.NoError(t, err)

	ctx := context.Background()

	def, err := processor.LoadAgent(ctx, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, "repo reviewer\n", def.BodyTemplate)

	_, err = processor.LoadAgent(ctx, "missing")
	assert.Error(t, err)

	defs, warnings := processor.ListAgents(ctx)
	assert.Empty(t, warnings)
	require.Len(t, defs, 2)
	assert.Equal(t, "reviewer", defs[0].Name)
	assert.Equal(t, "repo reviewer\n", defs[0].BodyTemplate)
	assert.Equal(t, "writer", defs[1].Name)
}

func TestNewAgentProcessor_DefaultDirs(t *testing.T) {
	processor, err := NewAgentProcessor()
	require.NoError(t, err)
	require.Len(t, processor.Dirs(), 2)
	assert.Equal(t, filepath.Join(".collective", "agents"), processor.Dirs()[0])

	_, err = NewAgentProcessor(WithAgentDirs())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	def, err := ParseMarkdown("---\nname: ../escaped\n---\nbody\n")
	require.NoError(t, err)
	assert.Error(t, Validate(def))

	def.Name = "escaped"
	assert.NoError(t, Validate(def))
}
