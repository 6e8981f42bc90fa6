package source

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultGitHubBaseURL serves repository tarballs as <base>/<owner>/<repo>/tar.gz/<ref>
const DefaultGitHubBaseURL = "https://codeload.github.com"

var errArchiveTooLarge = errors.New("archive exceeds size limit")

type fetcher struct {
	client        *http.Client
	githubBaseURL string
	maxBytes      int64
}

func (f *fetcher) archiveURL(loc Locator) string {
	if loc.Kind == KindArchive {
		return loc.URL
	}
	return fmt.Sprintf("%s/%s/%s/tar.gz/%s", strings.TrimRight(f.githubBaseURL, "/"), loc.Owner, loc.Repo, loc.Ref)
}

// fetch downloads the archive for loc and extracts it into dest. Failures are
// returned as LoadErrors without a source name; the loader fills it in.
func (f *fetcher) fetch(ctx context.Context, loc Locator, dest string) error {
	url := f.archiveURL(loc)
	logger.G(ctx).WithField("url", url).Debug("fetching source archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return catalog.NewLoadError(catalog.LoadNetwork, "", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return catalog.NewLoadError(catalog.LoadNetwork, "", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return catalog.NewLoadError(catalog.LoadNotFound, "", url, errors.Errorf("server returned %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return catalog.NewLoadError(catalog.LoadNetwork, "", url, errors.Errorf("server returned %s", resp.Status))
	}

	if err := extractTarGz(ctx, resp.Body, dest, f.maxBytes); err != nil {
		return classifyExtractError(ctx, url, err)
	}
	return nil
}

func classifyExtractError(ctx context.Context, url string, err error) error {
	switch {
	case ctx.Err() != nil:
		return catalog.NewLoadError(catalog.LoadNetwork, "", url, ctx.Err())
	case errors.Is(err, errArchiveTooLarge):
		return catalog.NewLoadError(catalog.LoadSizeExceeded, "", url, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return catalog.NewLoadError(catalog.LoadNetwork, "", url, err)
	default:
		return catalog.NewLoadError(catalog.LoadParseError, "", url, err)
	}
}

// limitReader fails with errArchiveTooLarge once more than max bytes are read
type limitReader struct {
	r    io.Reader
	read int64
	max  int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, errArchiveTooLarge
	}
	return n, err
}

// extractTarGz unpacks a gzip tarball, dropping the leading top-level
// directory that repository archives carry. Entries escaping dest, links and
// special files are skipped.
func extractTarGz(ctx context.Context, r io.Reader, dest string, maxBytes int64) error {
	if maxBytes > 0 {
		r = &limitReader{r: r, max: maxBytes}
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "invalid gzip stream")
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(err, "failed to create extraction directory")
	}

	var written int64
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "invalid tar stream")
		}

		_, rel, ok := strings.Cut(strings.TrimPrefix(hdr.Name, "./"), "/")
		if !ok || rel == "" {
			continue
		}
		rel = filepath.FromSlash(strings.TrimSuffix(rel, "/"))
		if !filepath.IsLocal(rel) {
			logger.G(ctx).WithField("entry", hdr.Name).Warn("skipping archive entry outside the source tree")
			continue
		}
		target := filepath.Join(dest, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", rel)
			}
		case tar.TypeReg:
			written += hdr.Size
			if maxBytes > 0 && written > maxBytes {
				return errors.Wrapf(errArchiveTooLarge, "more than %d bytes extracted", maxBytes)
			}
			if err := writeFile(target, tr, hdr.Size); err != nil {
				return errors.Wrapf(err, "failed to extract %s", rel)
			}
		}
	}
}

func writeFile(target string, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.CopyN(f, r, size); err != nil {
		return err
	}
	return nil
}
