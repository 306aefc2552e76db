// Copyright 2024 The ccd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package disk is the bounded-size, content-addressed disk cache
// backend: a two-level hex-sharded directory tree with an in-memory LRU
// index, crash-safe writes, and startup recovery by directory scan.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/ccdtools/ccd/internal/bundle"
	"github.com/ccdtools/ccd/internal/config"
	"github.com/ccdtools/ccd/internal/storage"
)

const (
	shardPrefixLen = 2
	dirPerm        = 0o755
	tempPrefix     = "tmp-"
)

func init() {
	storage.Register(config.CacheTypeDisk, func(cfg config.Config) (storage.Storage, error) {
		return New(cfg.DiskCacheDir, cfg.DiskCacheSize)
	})
}

// Cache is the disk-backed Storage implementation.
type Cache struct {
	dir     string
	maxSize int64

	mu  sync.Mutex
	idx *lruIndex
}

var _ storage.Storage = (*Cache)(nil)

// New creates (or reopens) a disk cache rooted at dir, recovering its
// LRU index from whatever is already on disk and clearing any stale
// temp files a crashed Put left behind.
func New(dir string, maxSize int64) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("disk: cache dir is empty")
	}
	if maxSize < 0 {
		return nil, errors.New("disk: max size must not be negative")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("disk: create cache dir: %w", err)
	}

	c := &Cache{dir: dir, maxSize: maxSize, idx: newLRUIndex()}
	if err := c.recover(); err != nil {
		return nil, err
	}
	return c, nil
}

// recover walks the shard tree, registering each cached entry's size
// (ordered by modification time, oldest first, so the LRU order right
// after startup roughly matches access recency) and removing leftover
// temp files from a write that never got renamed.
func (c *Cache) recover() error {
	type found struct {
		key     string
		size    int64
		modTime time.Time
	}
	var entries []found

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, tempPrefix) {
			glog.V(1).Infof("disk: removing stale temp file %s", path)
			return os.Remove(path)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, found{key: name, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("disk: recover: %w", err)
	}

	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].modTime.Before(entries[j-1].modTime); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.idx.touch(e.key, e.size)
	}
	glog.V(1).Infof("disk: recovered %d entries (%d bytes) from %s", len(entries), c.idx.size(), c.dir)
	return nil
}

func shardedPath(dir string, fp storage.Fingerprint) string {
	key := keyFor(fp)
	if len(key) <= shardPrefixLen {
		return filepath.Join(dir, key)
	}
	return filepath.Join(dir, key[:shardPrefixLen], key)
}

// keyFor strips the "sha256:" algorithm prefix so the on-disk name is
// just the hex digest.
func keyFor(fp storage.Fingerprint) string {
	s := fp.String()
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Get implements storage.Storage.
func (c *Cache) Get(ctx context.Context, fp storage.Fingerprint) (storage.Result, error) {
	key := keyFor(fp)
	path := shardedPath(c.dir, fp)

	c.mu.Lock()
	tracked := c.idx.has(key)
	c.mu.Unlock()
	if !tracked {
		return storage.Result{Kind: storage.ResultMiss}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.Result{Kind: storage.ResultMiss}, nil
		}
		return storage.Result{}, fmt.Errorf("disk: read %s: %w", path, err)
	}

	b, err := bundle.Unpack(data)
	if err != nil {
		return storage.Result{}, fmt.Errorf("disk: corrupt entry %s: %w", path, err)
	}
	return storage.Result{Kind: storage.ResultHit, Bundle: b}, nil
}

// Put implements storage.Storage. It writes to a temp file in the
// shard directory, fsyncs, then renames into place, so a crash never
// leaves a partial entry visible under its final name; it then updates
// the LRU index and evicts from the back until back under max size.
func (c *Cache) Put(ctx context.Context, fp storage.Fingerprint, b *bundle.Bundle) (time.Duration, error) {
	start := time.Now()

	raw, err := bundle.Pack(b)
	if err != nil {
		return 0, fmt.Errorf("disk: pack: %w", err)
	}

	path := shardedPath(c.dir, fp)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("disk: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("disk: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("disk: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("disk: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("disk: close temp: %w", err)
	}

	if ctx.Err() != nil {
		os.Remove(tmpPath)
		return 0, ctx.Err()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("disk: rename into place: %w", err)
	}

	key := keyFor(fp)
	c.mu.Lock()
	c.idx.touch(key, int64(len(raw)))
	c.idx.evictUntil(c.maxSize, func(evictKey string) {
		evictPath := pathForKey(c.dir, evictKey)
		if err := os.Remove(evictPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			glog.Warningf("disk: evict %s: %v", evictPath, err)
		}
	})
	c.mu.Unlock()

	return time.Since(start), nil
}

func pathForKey(dir, key string) string {
	if len(key) <= shardPrefixLen {
		return filepath.Join(dir, key)
	}
	return filepath.Join(dir, key[:shardPrefixLen], key)
}

// Location implements storage.Storage.
func (c *Cache) Location() string { return c.dir }

// CurrentSize implements storage.Storage.
func (c *Cache) CurrentSize() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.size(), true
}

// MaxSize implements storage.Storage.
func (c *Cache) MaxSize() (int64, bool) { return c.maxSize, true }
