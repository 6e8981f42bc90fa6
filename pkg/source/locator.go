// Package source loads skill catalogs from local directories and remote
// archives. Remote archives are fetched once per normalized locator and kept
// in an on-disk cache whose entries are populated by atomic rename.
package source

import (
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

// Kind is the kind of place a catalog is loaded from
type Kind string

// Locator kinds
const (
	KindLocal   Kind = "local"
	KindGitHub  Kind = "github"
	KindArchive Kind = "archive"
)

const defaultRef = "HEAD"

var repoPartPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Spec is one configured source, as supplied by configuration. Specs are
// given in precedence order, highest first.
type Spec struct {
	Name     string `mapstructure:"name" yaml:"name" json:"name,omitempty"`
	Location string `mapstructure:"location" yaml:"location" json:"location"`
	Ref      string `mapstructure:"ref" yaml:"ref,omitempty" json:"ref,omitempty"`
}

// Locator is a parsed, normalized source location
type Locator struct {
	Kind   Kind
	Path   string
	Owner  string
	Repo   string
	Subdir string
	Ref    string
	URL    string
}

// ParseLocator parses a source location. Accepted forms are a local path,
// "github:owner/repo[/subdir][#ref]" (or "gh:"), and an http(s) archive URL.
// A non-empty ref overrides the absence of one in the location but must agree
// with it when both are given.
func ParseLocator(location, ref string) (Locator, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Locator{}, errors.New("empty source location")
	}

	switch {
	case strings.HasPrefix(location, "github:"):
		return parseGitHub(strings.TrimPrefix(location, "github:"), ref)
	case strings.HasPrefix(location, "gh:"):
		return parseGitHub(strings.TrimPrefix(location, "gh:"), ref)
	case strings.HasPrefix(location, "https://"), strings.HasPrefix(location, "http://"):
		return parseArchiveURL(location)
	default:
		return parseLocal(location)
	}
}

func parseLocal(location string) (Locator, error) {
	p := location
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Locator{}, errors.Wrap(err, "failed to get user home directory")
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return Locator{}, errors.Wrapf(err, "invalid local path %q", location)
	}
	return Locator{Kind: KindLocal, Path: abs}, nil
}

func parseGitHub(rest, ref string) (Locator, error) {
	if i := strings.Index(rest, "#"); i >= 0 {
		fragRef := rest[i+1:]
		rest = rest[:i]
		if ref != "" && fragRef != "" && ref != fragRef {
			return Locator{}, errors.Errorf("conflicting refs %q and %q", fragRef, ref)
		}
		if fragRef != "" {
			ref = fragRef
		}
	}
	if ref == "" {
		ref = defaultRef
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return Locator{}, errors.Errorf("invalid github locator %q: expected owner/repo", rest)
	}
	owner := strings.ToLower(parts[0])
	repo := strings.ToLower(strings.TrimSuffix(parts[1], ".git"))
	if !repoPartPattern.MatchString(owner) || !repoPartPattern.MatchString(repo) {
		return Locator{}, errors.Errorf("invalid github locator %q: bad owner or repo", rest)
	}

	subdir := ""
	if len(parts) > 2 {
		subdir = path.Clean(strings.Join(parts[2:], "/"))
		if subdir == "." {
			subdir = ""
		}
		if subdir == ".." || strings.HasPrefix(subdir, "../") {
			return Locator{}, errors.Errorf("invalid github locator %q: subdirectory escapes the repository", rest)
		}
	}

	return Locator{Kind: KindGitHub, Owner: owner, Repo: repo, Subdir: subdir, Ref: ref}, nil
}

func parseArchiveURL(raw string) (Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, errors.Wrapf(err, "invalid archive url %q", raw)
	}
	if u.Host == "" {
		return Locator{}, errors.Errorf("invalid archive url %q: missing host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	subdir := strings.Trim(u.Fragment, "/")
	u.Fragment = ""
	return Locator{Kind: KindArchive, URL: u.String(), Subdir: subdir}, nil
}

// Remote reports whether the locator needs a fetch
func (l Locator) Remote() bool { return l.Kind != KindLocal }

// String returns the normalized form of the locator. Two locations that point
// at the same content produce the same string.
func (l Locator) String() string {
	switch l.Kind {
	case KindGitHub:
		s := "github:" + l.Owner + "/" + l.Repo
		if l.Subdir != "" {
			s += "/" + l.Subdir
		}
		return s + "#" + l.Ref
	case KindArchive:
		if l.Subdir != "" {
			return l.URL + "#" + l.Subdir
		}
		return l.URL
	default:
		return l.Path
	}
}

// DefaultName is the source name used when the spec does not give one
func (l Locator) DefaultName() string {
	switch l.Kind {
	case KindGitHub:
		return l.Owner + "/" + l.Repo
	case KindArchive:
		return l.URL
	default:
		return filepath.Base(l.Path)
	}
}

// CacheKey derives a fixed-length cache entry name from the normalized
// locator, using two differently seeded xxhash64 sums.
func (l Locator) CacheKey() string {
	return twox128(l.archiveIdentity())
}

// archiveIdentity drops the subdirectory: every subdirectory of one archive
// shares a cache entry.
func (l Locator) archiveIdentity() string {
	switch l.Kind {
	case KindGitHub:
		return "github:" + l.Owner + "/" + l.Repo + "#" + l.Ref
	case KindArchive:
		return l.URL
	default:
		return l.Path
	}
}

func twox128(s string) string {
	h1 := xxhash.NewS64(0)
	h1.Write([]byte(s))
	h2 := xxhash.NewS64(1)
	h2.Write([]byte(s))

	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:], h1.Sum64())
	binary.LittleEndian.PutUint64(out[8:], h2.Sum64())
	return hex.EncodeToString(out)
}
