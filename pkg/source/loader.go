package source

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/claude-collective/collective/pkg/agents"
	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/claude-collective/collective/pkg/telemetry"
)

const (
	// CategoriesFileName declares the categories of a source tree
	CategoriesFileName = "categories.yaml"
	// ContentFileName holds the content payload next to a metadata document
	ContentFileName = "SKILL.md"

	skillsDirName = "skills"

	// DefaultWorkers caps concurrent source loads
	DefaultWorkers = 4
	// DefaultFetchTimeout bounds a single archive fetch
	DefaultFetchTimeout = 60 * time.Second
	// DefaultMaxArchiveBytes bounds the extracted size of one archive
	DefaultMaxArchiveBytes int64 = 64 << 20
)

// Loader loads catalogs from source specs. A Loader fetches each remote
// archive at most once; later loads of the same archive reuse the extracted
// tree. It is safe for concurrent use.
type Loader struct {
	cache        *Cache
	fetcher      *fetcher
	limits       catalog.Limits
	workers      int
	fetchTimeout time.Duration
	refresh      bool

	group singleflight.Group
	mu    sync.Mutex
	trees map[string]string
}

// Option configures a Loader
type Option func(*Loader)

// WithCacheDir sets the fetch cache directory
func WithCacheDir(dir string) Option {
	return func(l *Loader) { l.cache = NewCache(dir) }
}

// WithLimits sets the metadata document limits
func WithLimits(limits catalog.Limits) Option {
	return func(l *Loader) { l.limits = limits }
}

// WithMaxArchiveBytes bounds the extracted size of a remote archive
func WithMaxArchiveBytes(n int64) Option {
	return func(l *Loader) { l.fetcher.maxBytes = n }
}

// WithHTTPClient sets the client used for archive downloads
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) { l.fetcher.client = client }
}

// WithGitHubBaseURL overrides the host serving GitHub tarballs
func WithGitHubBaseURL(base string) Option {
	return func(l *Loader) { l.fetcher.githubBaseURL = base }
}

// WithFetchTimeout bounds each archive fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) { l.fetchTimeout = d }
}

// WithWorkers caps the number of sources LoadAll loads at once
func WithWorkers(n int) Option {
	return func(l *Loader) { l.workers = n }
}

// WithRefresh forces remote archives to be fetched again, replacing their
// cache entries
func WithRefresh(refresh bool) Option {
	return func(l *Loader) { l.refresh = refresh }
}

// NewLoader creates a loader. Without WithCacheDir the per-user cache
// directory is used.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		limits:       catalog.DefaultLimits,
		workers:      DefaultWorkers,
		fetchTimeout: DefaultFetchTimeout,
		fetcher: &fetcher{
			client:        http.DefaultClient,
			githubBaseURL: DefaultGitHubBaseURL,
			maxBytes:      DefaultMaxArchiveBytes,
		},
		trees: make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.cache == nil {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		l.cache = NewCache(dir)
	}
	if l.workers < 1 {
		l.workers = 1
	}
	return l, nil
}

// Cache returns the loader's fetch cache
func (l *Loader) Cache() *Cache { return l.cache }

// Result is the outcome of loading one spec
type Result struct {
	Spec    Spec
	Catalog *catalog.RawCatalog
	Err     error
}

// LoadAll loads specs with bounded concurrency. Results are returned in the
// order of specs regardless of completion order; one failed source does not
// stop the others.
func (l *Loader) LoadAll(ctx context.Context, specs []Spec) []Result {
	results := make([]Result, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, spec := range specs {
		g.Go(func() error {
			raw, err := l.Load(gctx, spec)
			results[i] = Result{Spec: spec, Catalog: raw, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Load loads one source. Failures that abort the source are returned as
// *catalog.LoadError; problems confined to one entry are recorded as warnings
// on the catalog.
func (l *Loader) Load(ctx context.Context, spec Spec) (*catalog.RawCatalog, error) {
	loc, err := ParseLocator(spec.Location, spec.Ref)
	if err != nil {
		name := spec.Name
		if name == "" {
			name = spec.Location
		}
		return nil, catalog.NewLoadError(catalog.LoadParseError, name, spec.Location, err)
	}
	name := spec.Name
	if name == "" {
		name = loc.DefaultName()
	}

	var raw *catalog.RawCatalog
	err = telemetry.WithSpan(ctx, "source.load", func(ctx context.Context) error {
		ctx = logger.WithFields(ctx, map[string]any{"source": name})

		root, err := l.root(ctx, loc)
		if err != nil {
			return withSource(err, name)
		}

		raw, err = readTree(ctx, root, name, l.limits)
		if err != nil {
			return withSource(err, name)
		}
		raw.Source = catalog.SourceInfo{
			Name:       name,
			Location:   spec.Location,
			Normalized: loc.String(),
			Remote:     loc.Remote(),
			Root:       root,
		}

		telemetry.SetAttributes(ctx,
			attribute.Int("source.entries", len(raw.Entries)),
			attribute.Int("source.warnings", len(raw.Warnings)),
		)
		logger.G(ctx).WithField("entries", len(raw.Entries)).Debug("loaded source")
		return nil
	}, attribute.String("source.name", name), attribute.String("source.locator", loc.String()))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// root returns the directory a source tree is read from, fetching remote
// archives as needed.
func (l *Loader) root(ctx context.Context, loc Locator) (string, error) {
	dir := loc.Path
	if loc.Remote() {
		tree, err := l.tree(ctx, loc)
		if err != nil {
			return "", err
		}
		dir = filepath.Join(tree, filepath.FromSlash(loc.Subdir))
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", catalog.NewLoadError(catalog.LoadNotFound, "", loc.String(), errors.New("source directory does not exist"))
		}
		return "", catalog.NewLoadError(catalog.LoadNotFound, "", loc.String(), err)
	}
	if !info.IsDir() {
		return "", catalog.NewLoadError(catalog.LoadNotFound, "", loc.String(), errors.New("source location is not a directory"))
	}
	return dir, nil
}

// tree returns the extracted archive for loc. Within one Loader an archive is
// resolved once; concurrent callers for the same archive share one fetch.
// The shared fetch is bounded by the fetch timeout only, so a caller that
// gives up returns early without failing the others.
func (l *Loader) tree(ctx context.Context, loc Locator) (string, error) {
	key := loc.archiveIdentity()

	l.mu.Lock()
	dir, ok := l.trees[key]
	l.mu.Unlock()
	if ok {
		return dir, nil
	}
	if err := ctx.Err(); err != nil {
		return "", catalog.NewLoadError(catalog.LoadNetwork, "", loc.String(), err)
	}

	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		l.mu.Lock()
		dir, ok := l.trees[key]
		l.mu.Unlock()
		if ok {
			return dir, nil
		}

		if !l.refresh {
			if dir, ok := l.cache.Lookup(loc); ok {
				logger.G(shared).WithField("locator", loc.String()).Debug("using cached source archive")
				l.remember(key, dir)
				return dir, nil
			}
		}

		dir, err := l.cache.Populate(loc, l.refresh, func(dest string) error {
			fetchCtx, cancel := context.WithTimeout(shared, l.fetchTimeout)
			defer cancel()
			return l.fetcher.fetch(fetchCtx, loc, dest)
		})
		if err != nil {
			return "", err
		}
		l.remember(key, dir)
		return dir, nil
	})

	select {
	case <-ctx.Done():
		return "", catalog.NewLoadError(catalog.LoadNetwork, "", loc.String(), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (l *Loader) remember(key, dir string) {
	l.mu.Lock()
	l.trees[key] = dir
	l.mu.Unlock()
}

// withSource stamps the source name on a LoadError, and classifies any other
// error as a network failure since it can only come from the fetch path.
func withSource(err error, name string) error {
	var le *catalog.LoadError
	if errors.As(err, &le) {
		copied := *le
		copied.Source = name
		return &copied
	}
	return catalog.NewLoadError(catalog.LoadNetwork, name, "", err)
}

// readTree reads the catalog below root: categories, skill entries with their
// content, and agent definitions.
func readTree(ctx context.Context, root, name string, limits catalog.Limits) (*catalog.RawCatalog, error) {
	raw := &catalog.RawCatalog{}

	categories, err := readCategories(root, limits)
	if err != nil {
		return nil, err
	}
	for i := range categories {
		categories[i].Source = name
	}
	raw.Categories = categories

	skillsRoot := root
	if info, err := os.Stat(filepath.Join(root, skillsDirName)); err == nil && info.IsDir() {
		skillsRoot = filepath.Join(root, skillsDirName)
	}

	matches, err := doublestar.Glob(os.DirFS(skillsRoot), "**/"+catalog.MetadataFileName)
	if err != nil {
		return nil, catalog.NewLoadError(catalog.LoadParseError, "", skillsRoot, err)
	}
	sort.Strings(matches)

	seen := make(map[catalog.SkillID]string)
	reported := make(map[string]bool)

	for _, rel := range matches {
		entryPath := path.Dir(rel)
		warn := func(msg string) {
			logger.G(ctx).WithField("path", rel).Warn(msg)
			raw.Warnings = append(raw.Warnings, catalog.Warning{Source: name, Path: rel, Message: msg})
		}

		data, err := os.ReadFile(filepath.Join(skillsRoot, filepath.FromSlash(rel)))
		if err != nil {
			warn("skipping entry: " + err.Error())
			continue
		}

		entry, unknown, err := catalog.ParseMetadata(data, limits)
		if err != nil {
			if errors.Is(err, catalog.ErrSizeExceeded) {
				return nil, catalog.NewLoadError(catalog.LoadSizeExceeded, "", rel, err)
			}
			warn("skipping entry: " + err.Error())
			continue
		}

		for _, field := range unknown {
			if reported[field] {
				continue
			}
			reported[field] = true
			logger.G(ctx).WithFields(map[string]any{"field": field, "skill": entry.ID}).Info("preserving unrecognized metadata field")
		}

		if first, ok := seen[entry.ID]; ok {
			warn("skipping duplicate skill " + string(entry.ID) + ", already defined in " + first)
			continue
		}
		seen[entry.ID] = rel

		entry.Source = name
		entry.Path = entryPath
		if err := readContent(filepath.Join(skillsRoot, filepath.FromSlash(entryPath)), entry); err != nil {
			warn(err.Error())
		}
		if entry.Name == "" {
			entry.Name = string(entry.ID)
		}

		raw.Entries = append(raw.Entries, entry)
	}

	agentsDir := filepath.Join(root, agents.DirName)
	if info, err := os.Stat(agentsDir); err == nil && info.IsDir() {
		defs, warnings := agents.LoadDir(ctx, agentsDir, name)
		raw.Agents = defs
		raw.Warnings = append(raw.Warnings, warnings...)
	}

	return raw, nil
}

func readCategories(root string, limits catalog.Limits) ([]catalog.Category, error) {
	for _, candidate := range []string{CategoriesFileName, path.Join(skillsDirName, CategoriesFileName)} {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(candidate)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, catalog.NewLoadError(catalog.LoadParseError, "", candidate, err)
		}

		categories, err := catalog.ParseCategories(data, limits)
		if err != nil {
			if errors.Is(err, catalog.ErrSizeExceeded) {
				return nil, catalog.NewLoadError(catalog.LoadSizeExceeded, "", candidate, err)
			}
			return nil, catalog.NewLoadError(catalog.LoadParseError, "", candidate, err)
		}
		return categories, nil
	}
	return nil, nil
}

// readContent fills the entry's content payload from the SKILL.md next to
// its metadata. Frontmatter in SKILL.md supplies the display name when the
// metadata has none.
func readContent(dir string, entry *catalog.Entry) error {
	data, err := os.ReadFile(filepath.Join(dir, ContentFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", ContentFileName)
	}

	frontmatter, body, err := catalog.SplitFrontmatter(string(data))
	if err != nil {
		entry.Content = string(data)
		return errors.Wrapf(err, "%s frontmatter ignored", ContentFileName)
	}
	if entry.Name == "" {
		entry.Name = catalog.StringField(frontmatter, "name")
	}
	entry.Content = body
	return nil
}
