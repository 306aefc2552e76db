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

package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdtools/ccd/internal/config"
	"github.com/ccdtools/ccd/internal/storage"
	_ "github.com/ccdtools/ccd/internal/storage/disk"
)

func TestFromConfigDisk(t *testing.T) {
	cfg := config.Config{CacheType: config.CacheTypeDisk, DiskCacheDir: t.TempDir(), DiskCacheSize: 1 << 20}
	s, err := storage.FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.DiskCacheDir, s.Location())
	max, ok := s.MaxSize()
	require.True(t, ok)
	assert.EqualValues(t, 1<<20, max)
}

func TestFromConfigInvalidFallsBackToDisk(t *testing.T) {
	cfg := config.Config{CacheType: config.CacheTypeInvalid}
	s, err := storage.FromConfig(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Location())
}

func TestFromConfigRedisAndS3AreStubs(t *testing.T) {
	s, err := storage.FromConfig(config.Config{CacheType: config.CacheTypeRedis, RedisURL: "redis://x"})
	require.NoError(t, err)
	_, getErr := s.Get(context.Background(), storage.Fingerprint("sha256:a"))
	assert.ErrorIs(t, getErr, storage.ErrBackendUnavailable)
}
