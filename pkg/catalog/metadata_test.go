package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	doc := `
id: typed-client
name: Typed Client
category: api/client
description: Generated API client
requires:
  mode: all
  skills: [http-core]
  reason: needs the transport layer
conflictsWith:
  - legacy-client
  - id: graphql-client
    reason: pick one client style
exclusiveGroup: api/client
recommends:
  - id: zod
    reason: validates responses
discourages: [axios]
aliases: [api-client]
maintainer: platform-team
`
	entry, unknown, err := ParseMetadata([]byte(doc), DefaultLimits)
	require.NoError(t, err)

	assert.Equal(t, SkillID("typed-client"), entry.ID)
	assert.Equal(t, "Typed Client", entry.Name)
	assert.Equal(t, CategoryPath("api/client"), entry.Category)
	assert.Equal(t, RequireAll, entry.Requires.Mode)
	assert.Equal(t, []SkillID{"http-core"}, entry.Requires.Skills)
	assert.Equal(t, "needs the transport layer", entry.Requires.Reason)
	assert.Equal(t, []Relation{{ID: "legacy-client"}, {ID: "graphql-client", Reason: "pick one client style"}}, entry.ConflictsWith)
	assert.Equal(t, CategoryPath("api/client"), entry.ExclusiveGroup)
	assert.Equal(t, []Relation{{ID: "zod", Reason: "validates responses"}}, entry.Recommends)
	assert.Equal(t, []Relation{{ID: "axios"}}, entry.Discourages)
	assert.Equal(t, []SkillID{"api-client"}, entry.Aliases)

	assert.Equal(t, []string{"maintainer"}, unknown)
	assert.Equal(t, map[string]any{"maintainer": "platform-team"}, entry.Extra)
}

func TestParseMetadataRequiresForms(t *testing.T) {
	t.Run("list means all of", func(t *testing.T) {
		entry, _, err := ParseMetadata([]byte("id: a\ncategory: x/y\ndescription: d\nrequires: [b, c]\n"), DefaultLimits)
		require.NoError(t, err)
		assert.Equal(t, RequireAll, entry.Requires.Mode)
		assert.Equal(t, []SkillID{"b", "c"}, entry.Requires.Skills)
	})

	t.Run("any of", func(t *testing.T) {
		entry, _, err := ParseMetadata([]byte("id: a\ncategory: x/y\ndescription: d\nrequires:\n  mode: any\n  skills: [b, c]\n"), DefaultLimits)
		require.NoError(t, err)
		assert.Equal(t, RequireAny, entry.Requires.Mode)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, _, err := ParseMetadata([]byte("id: a\ncategory: x/y\ndescription: d\nrequires:\n  mode: some\n  skills: [b]\n"), DefaultLimits)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires.mode")
	})

	t.Run("no requires", func(t *testing.T) {
		entry, _, err := ParseMetadata([]byte("id: a\ncategory: x/y\ndescription: d\n"), DefaultLimits)
		require.NoError(t, err)
		assert.True(t, entry.Requires.Empty())
		assert.Equal(t, RequireAll, entry.Requires.Mode)
	})
}

func TestParseMetadataRejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "missing fields", doc: "name: x\n", wantErr: "missing required field(s): id, category, description"},
		{name: "not a mapping", doc: "- a\n- b\n", wantErr: "must be a mapping"},
		{name: "bad id", doc: "id: Bad_ID\ncategory: x/y\ndescription: d\n", wantErr: "invalid skill id"},
		{name: "alias equals id", doc: "id: a\ncategory: x/y\ndescription: d\naliases: [a]\n", wantErr: "repeats the skill id"},
		{name: "empty relation", doc: "id: a\ncategory: x/y\ndescription: d\nconflictsWith:\n  - reason: no id\n", wantErr: "empty id"},
		{name: "yaml anchors", doc: "id: a\ncategory: x/y\ndescription: d\nx: &anchor [1]\ny: *anchor\n", wantErr: "aliases are not allowed"},
		{name: "broken yaml", doc: "id: [\n", wantErr: "invalid yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseMetadata([]byte(tt.doc), DefaultLimits)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseMetadataLimits(t *testing.T) {
	t.Run("size", func(t *testing.T) {
		doc := "id: a\ncategory: x/y\ndescription: " + strings.Repeat("x", 200) + "\n"
		_, _, err := ParseMetadata([]byte(doc), Limits{MaxBytes: 100, MaxDepth: 8})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSizeExceeded)
	})

	t.Run("depth", func(t *testing.T) {
		doc := "id: a\ncategory: x/y\ndescription: d\nnested: {a: {b: {c: [1]}}}\n"
		_, _, err := ParseMetadata([]byte(doc), Limits{MaxBytes: 1024, MaxDepth: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nesting depth exceeds 3")

		_, _, err = ParseMetadata([]byte(doc), Limits{MaxBytes: 1024, MaxDepth: 5})
		assert.NoError(t, err)
	})
}

func TestGrammar(t *testing.T) {
	assert.True(t, SkillID("react").Valid())
	assert.True(t, SkillID("http-core").Valid())
	assert.True(t, SkillID("@acme/react.hooks").Valid())
	assert.False(t, SkillID("").Valid())
	assert.False(t, SkillID("-react").Valid())
	assert.False(t, SkillID("re--act").Valid())
	assert.False(t, SkillID("React").Valid())

	assert.True(t, CategoryPath("frontend/framework").Valid())
	assert.Equal(t, "frontend", CategoryPath("frontend/framework").Domain())
	assert.Equal(t, "framework", CategoryPath("frontend/framework").Subcategory())
	assert.False(t, CategoryPath("frontend").Valid())
	assert.False(t, CategoryPath("frontend/").Valid())
	assert.False(t, CategoryPath("/framework").Valid())
	assert.False(t, CategoryPath("a/b/c").Valid())
	assert.False(t, CategoryPath("Front End/x").Valid())
}

func TestParseCategories(t *testing.T) {
	list := "- path: frontend/framework\n  exclusive: true\n  required: true\n- path: backend/api\n"
	categories, err := ParseCategories([]byte(list), DefaultLimits)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.True(t, categories[0].Exclusive)
	assert.True(t, categories[0].Required)
	assert.Equal(t, CategoryPath("backend/api"), categories[1].Path)

	wrapped := "categories:\n  - path: frontend/styling\n    name: Styling\n"
	categories, err = ParseCategories([]byte(wrapped), DefaultLimits)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Styling", categories[0].Name)

	_, err = ParseCategories([]byte("- name: nameless\n"), DefaultLimits)
	assert.Error(t, err)
}

func TestMetadataSchema(t *testing.T) {
	out, err := MetadataSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(out, &schema))
	assert.Equal(t, "Skill metadata", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "requires")
	assert.Contains(t, props, "conflictsWith")
	assert.ElementsMatch(t, []any{"id", "category", "description"}, schema["required"])
}

func TestLoadErrorHelpers(t *testing.T) {
	err := NewLoadError(LoadNotFound, "remote", "", assert.AnError)
	assert.True(t, err.Recoverable())
	assert.True(t, IsLoadError(err, LoadNotFound))
	assert.False(t, IsLoadError(err, LoadNetwork))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "load remote (not_found)")
}
