// Package cache stores generated kernel sources on disk, keyed by
// content, so recompiling an unchanged expression reuses the artifact.
// Entries live in short-hash directories under one root; a stored
// digest file marks an entry complete and guards against short-hash
// collisions.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
)

const (
	artifactName = "kernel.c"
	hashName     = ".hash"
	lockName     = ".lock"

	keepEntries = 5
	minEntryAge = 7 * 24 * time.Hour
)

// EnvDir overrides the default cache root when set.
const EnvDir = "FIREDRAKE_CACHE"

// Dir returns the cache root: $FIREDRAKE_CACHE when set, otherwise a
// firedrake directory under the OS user cache dir.
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user cache dir")
	}
	return filepath.Join(base, "firedrake"), nil
}

// Cache is a content-addressed store of generated kernel sources.
type Cache struct {
	root string
}

// Open roots a cache at dir, creating it if needed. An empty dir means
// the default root from Dir.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	return &Cache{root: dir}, nil
}

// Root reports the cache directory.
func (c *Cache) Root() string { return c.root }

// Key derives the content address of one compilation: a SHA-256 over
// the generated source and the parameter fingerprint.
func Key(source string, params *config.Parameters) string {
	h := sha256.New()
	h.Write([]byte(source))
	if params != nil {
		h.Write([]byte(params.Fingerprint()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func shortHash(key string) (string, error) {
	if len(key) != sha256.Size*2 {
		return "", errors.Wrapf(errdefs.ErrInvalidArgument, "cache key %q is not a sha256 digest", key)
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", errors.Wrapf(errdefs.ErrInvalidArgument, "cache key %q is not a sha256 digest", key)
	}
	return key[:8], nil
}

// Get reports whether the cache holds an artifact for key, returning
// its path on a hit. The stored digest is compared against the full
// key, so a short-hash collision reads as a miss.
func (c *Cache) Get(key string) (string, bool) {
	short, err := shortHash(key)
	if err != nil {
		return "", false
	}
	dir := filepath.Join(c.root, short)
	stored, err := os.ReadFile(filepath.Join(dir, hashName))
	if err != nil || string(stored) != key {
		return "", false
	}
	path := filepath.Join(dir, artifactName)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	klog.V(2).Infof("cache: hit %s", path)
	return path, true
}

// Put stores source under key and returns the artifact path. The write
// happens under a root-level file lock, so concurrent processes see
// either a complete entry or none. A present entry whose digest does
// not match the key is discarded and rewritten.
func (c *Cache) Put(key, source string) (string, error) {
	short, err := shortHash(key)
	if err != nil {
		return "", err
	}

	lock := flock.New(filepath.Join(c.root, lockName))
	if err := lock.Lock(); err != nil {
		return "", errors.Wrap(err, "acquire cache lock")
	}
	defer lock.Unlock()

	dir := filepath.Join(c.root, short)
	hashFile := filepath.Join(dir, hashName)
	path := filepath.Join(dir, artifactName)

	if stored, err := os.ReadFile(hashFile); err == nil {
		if string(stored) == key {
			if _, err := os.Stat(path); err == nil {
				klog.V(2).Infof("cache: hit %s", path)
				return path, nil
			}
		}
		klog.V(2).Infof("cache: stale entry, rewriting %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return "", errors.Wrapf(err, "discard stale entry %s", dir)
		}
	}

	cleanupStale(c.root, keepEntries, minEntryAge)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "create entry dir %s", dir)
	}
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", path)
	}
	// The digest is written last and marks the entry complete.
	if err := os.WriteFile(hashFile, []byte(key), 0644); err != nil {
		return "", errors.Wrapf(err, "write digest %s", hashFile)
	}
	klog.V(2).Infof("cache: stored %s", path)
	return path, nil
}

// isHashDir reports whether name looks like a short-hash entry.
func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// cleanupStale removes old cache entries, keeping at least keep most
// recent and never touching entries younger than minAge. Failures are
// logged and otherwise ignored.
func cleanupStale(root string, keep int, minAge time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) <= keep {
		return
	}

	type dirInfo struct {
		name  string
		mtime time.Time
	}
	var dirs []dirInfo
	for _, e := range entries {
		if e.IsDir() && isHashDir(e.Name()) {
			if info, err := e.Info(); err == nil {
				dirs = append(dirs, dirInfo{e.Name(), info.ModTime()})
			}
		}
	}
	if len(dirs) <= keep {
		return
	}

	cutoff := time.Now().Add(-minAge)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime.Before(dirs[j].mtime) })
	for i := 0; i < len(dirs)-keep; i++ {
		if dirs[i].mtime.Before(cutoff) {
			path := filepath.Join(root, dirs[i].name)
			if err := os.RemoveAll(path); err != nil {
				klog.Warningf("cache: failed to remove stale entry %s: %v", path, err)
			}
		}
	}
}
