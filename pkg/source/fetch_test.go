package source

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-collective/collective/pkg/catalog"
)

func TestExtractTarGzSkipsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range []string{"repo/ok.txt", "repo/../../evil.txt", "repo/link"} {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: 2}
		if name == "repo/link" {
			hdr = &tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte("hi"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	base := t.TempDir()
	dest := filepath.Join(base, "out")
	require.NoError(t, extractTarGz(context.Background(), &buf, dest, 0))

	content, err := os.ReadFile(filepath.Join(dest, "ok.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))

	_, err = os.Stat(filepath.Join(base, "evil.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dest, "link"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchTruncatedArchive(t *testing.T) {
	archive := tarball(t, skillFiles("react", "frontend/framework", ""))
	srv := serveArchives(t, map[string][]byte{"/acme/skills/tar.gz/HEAD": archive[:len(archive)/2]})

	f := &fetcher{client: srv.Client(), githubBaseURL: srv.URL}
	err := f.fetch(context.Background(), Locator{Kind: KindGitHub, Owner: "acme", Repo: "skills", Ref: "HEAD"}, t.TempDir())
	assert.True(t, catalog.IsLoadError(err, catalog.LoadNetwork), "got %v", err)
}
