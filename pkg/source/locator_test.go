package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name       string
		location   string
		ref        string
		normalized string
		kind       Kind
	}{
		{name: "github short form", location: "github:acme/skills", normalized: "github:acme/skills#HEAD", kind: KindGitHub},
		{name: "gh alias and case", location: "gh:Acme/Skills.git", normalized: "github:acme/skills#HEAD", kind: KindGitHub},
		{name: "subdirectory", location: "github:acme/skills/packs/./web/", normalized: "github:acme/skills/packs/web#HEAD", kind: KindGitHub},
		{name: "fragment ref", location: "github:acme/skills#v1.2.0", normalized: "github:acme/skills#v1.2.0", kind: KindGitHub},
		{name: "spec ref", location: "github:acme/skills", ref: "main", normalized: "github:acme/skills#main", kind: KindGitHub},
		{name: "archive url", location: "https://Example.COM/skills.tar.gz#pack", normalized: "https://example.com/skills.tar.gz#pack", kind: KindArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseLocator(tt.location, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, loc.Kind)
			assert.Equal(t, tt.normalized, loc.String())
			assert.True(t, loc.Remote())
		})
	}
}

func TestParseLocatorLocal(t *testing.T) {
	loc, err := ParseLocator("./catalog", "")
	require.NoError(t, err)
	assert.Equal(t, KindLocal, loc.Kind)
	assert.False(t, loc.Remote())
	assert.True(t, filepath.IsAbs(loc.Path))
	assert.Equal(t, "catalog", loc.DefaultName())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	loc, err = ParseLocator("~/skills", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "skills"), loc.Path)
}

func TestParseLocatorErrors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		ref      string
	}{
		{name: "empty", location: "  "},
		{name: "missing repo", location: "github:acme"},
		{name: "bad owner", location: "github:-acme/skills"},
		{name: "escaping subdir", location: "github:acme/skills/../../etc"},
		{name: "conflicting refs", location: "github:acme/skills#v1", ref: "v2"},
		{name: "archive without host", location: "https:///skills.tar.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLocator(tt.location, tt.ref)
			assert.Error(t, err)
		})
	}
}

func TestCacheKey(t *testing.T) {
	a, err := ParseLocator("github:Acme/Skills.git", "")
	require.NoError(t, err)
	b, err := ParseLocator("gh:acme/skills#HEAD", "")
	require.NoError(t, err)
	sub, err := ParseLocator("github:acme/skills/web", "")
	require.NoError(t, err)
	other, err := ParseLocator("github:acme/skills#v2", "")
	require.NoError(t, err)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.Equal(t, a.CacheKey(), sub.CacheKey())
	assert.NotEqual(t, a.CacheKey(), other.CacheKey())
	assert.Len(t, a.CacheKey(), 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, a.CacheKey())
}
