package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	treeDirName     = "tree"
	locatorFileName = "locator"
)

// Cache is the on-disk store of fetched archives. Each entry is a directory
// named by Locator.CacheKey holding the extracted tree and the normalized
// locator it was fetched for. Entries only ever appear by rename, so a reader
// sees either a complete entry or none.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// DefaultCacheDir is the per-user cache location
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user cache directory")
	}
	return filepath.Join(base, "collective", "sources"), nil
}

// Dir returns the cache root
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) entryDir(loc Locator) string {
	return filepath.Join(c.dir, loc.CacheKey())
}

// Lookup returns the extracted tree for loc when a complete entry exists
func (c *Cache) Lookup(loc Locator) (string, bool) {
	entry := c.entryDir(loc)
	recorded, err := os.ReadFile(filepath.Join(entry, locatorFileName))
	if err != nil || strings.TrimSpace(string(recorded)) != loc.archiveIdentity() {
		return "", false
	}
	return filepath.Join(entry, treeDirName), true
}

// Populate creates the entry for loc by calling fill on a fresh temporary
// directory and renaming the result into place. When another writer commits
// the same entry first, the temporary copy is discarded and the existing entry
// is used. With refresh, an existing entry is replaced.
func (c *Cache) Populate(loc Locator, refresh bool, fill func(dir string) error) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create cache directory")
	}

	tmp, err := os.MkdirTemp(c.dir, ".tmp-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary cache entry")
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	if err := fill(filepath.Join(tmp, treeDirName)); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(tmp, locatorFileName), []byte(loc.archiveIdentity()+"\n"), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write cache entry locator")
	}

	final := c.entryDir(loc)
	if refresh {
		if err := c.evict(final); err != nil {
			return "", err
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		if tree, ok := c.Lookup(loc); ok {
			return tree, nil
		}
		return "", errors.Wrap(err, "failed to commit cache entry")
	}
	committed = true
	return filepath.Join(final, treeDirName), nil
}

// evict moves an existing entry aside before deleting it so the entry name is
// free for the next rename.
func (c *Cache) evict(entry string) error {
	if _, err := os.Stat(entry); os.IsNotExist(err) {
		return nil
	}
	stale, err := os.MkdirTemp(c.dir, ".stale-*")
	if err != nil {
		return errors.Wrap(err, "failed to evict cache entry")
	}
	defer os.RemoveAll(stale)

	if err := os.Rename(entry, filepath.Join(stale, "entry")); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to evict cache entry")
	}
	return nil
}

// Clean removes every cache entry
func (c *Cache) Clean() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Wrap(err, "failed to remove cache directory")
	}
	return nil
}
