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

// Package storage defines the pluggable cache backend contract and
// dispatches to a concrete implementation based on config.
package storage

import (
	"context"
	"fmt"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/ccdtools/ccd/internal/bundle"
	"github.com/ccdtools/ccd/internal/config"
)

// Fingerprint is the cache key: a content digest over everything that
// determines a compile's output.
type Fingerprint digest.Digest

// String returns the "sha256:<hex>" textual form.
func (f Fingerprint) String() string { return string(f) }

// ResultKind discriminates the variants of Result.
type ResultKind int

const (
	ResultMiss ResultKind = iota
	ResultHit
	ResultRecache
)

// Result is a closed sum type over what a Get/Put round can report.
// Go has no sealed enum, so this is a small tagged struct rather than
// an interface hierarchy — see DESIGN.md for the tradeoff against
// modeling it as three Storage-returned interface types instead.
type Result struct {
	Kind   ResultKind
	Bundle *bundle.Bundle // set only when Kind == ResultHit
}

// Storage is the cache backend contract every implementation satisfies,
// exactly as spec's storage abstraction: get, put, and capacity
// introspection, with implementation detail — network calls, eviction
// policy — fully opaque to callers.
type Storage interface {
	Get(ctx context.Context, fp Fingerprint) (Result, error)
	Put(ctx context.Context, fp Fingerprint, b *bundle.Bundle) (time.Duration, error)
	Location() string
	CurrentSize() (int64, bool)
	MaxSize() (int64, bool)
}

// Factory constructs a Storage backend from a resolved Config.
type Factory func(cfg config.Config) (Storage, error)

// factories holds one constructor per CacheType, populated by each
// backend package's init() (storage/disk registers itself under
// CacheTypeDisk). This mirrors the database/sql driver-registry
// pattern rather than having this package import its own backend
// subpackages directly, which would be an import cycle: storage/disk's
// Cache methods are typed in terms of storage.Fingerprint/storage.Result,
// so storage/disk must import storage, and storage can't also import
// storage/disk.
var factories = map[config.CacheType]Factory{}

// Register adds or replaces the Factory used for CacheType t. Backend
// packages call this from their own init().
func Register(t config.CacheType, f Factory) {
	factories[t] = f
}

// FromConfig constructs the Storage backend named by cfg.CacheType,
// mirroring cache.rs's storage_from_environment: an unset cache type
// falls back to a disk cache at the documented default location and
// size, and any other unrecognized type is an error.
func FromConfig(cfg config.Config) (Storage, error) {
	switch cfg.CacheType {
	case config.CacheTypeRedis:
		return newRedisStub(cfg.RedisURL), nil
	case config.CacheTypeS3:
		return newS3Stub(cfg.S3Bucket, cfg.S3Endpoint), nil
	}

	if f, ok := factories[config.CacheTypeDisk]; ok {
		if cfg.CacheType != config.CacheTypeDisk && cfg.CacheType != config.CacheTypeInvalid {
			return nil, fmt.Errorf("storage: unknown cache type %q", cfg.CacheType)
		}
		if cfg.DiskCacheDir == "" {
			cfg.DiskCacheDir = config.DefaultDiskCacheDir()
		}
		if cfg.DiskCacheSize == 0 {
			cfg.DiskCacheSize = config.TenGigs
		}
		return f(cfg)
	}
	return nil, fmt.Errorf("storage: no disk backend registered (missing blank import of internal/storage/disk)")
}
