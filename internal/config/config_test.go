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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	_, ok := parseSize("")
	assert.False(t, ok)
	_, ok = parseSize("100")
	assert.False(t, ok)

	v, ok := parseSize("2K")
	require.True(t, ok)
	assert.EqualValues(t, 2048, v)

	v, ok = parseSize("10M")
	require.True(t, ok)
	assert.EqualValues(t, 10*1024*1024, v)

	v, ok = parseSize("10G")
	require.True(t, ok)
	assert.EqualValues(t, TenGigs, v)

	v, ok = parseSize("10T")
	require.True(t, ok)
	assert.EqualValues(t, 1024*TenGigs, v)
}

func clearCCDEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CCD_CONF", "CCD_DIR", "CCD_CACHE_SIZE", "CCD_RECACHE", "CCD_NO_DAEMON",
		"CCD_LOG_LEVEL", "CCD_REDIS_URL", "CCD_S3_BUCKET", "CCD_S3_ENDPOINT",
		"CCD_SERVER_PORT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadServerPortDefaultAndOverride(t *testing.T) {
	clearCCDEnv(t)
	cfg := Load()
	assert.Equal(t, DefaultServerPort, cfg.ServerPort)

	t.Setenv("CCD_SERVER_PORT", "9999")
	cfg = Load()
	assert.Equal(t, 9999, cfg.ServerPort)

	t.Setenv("CCD_SERVER_PORT", "not-a-port")
	cfg = Load()
	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
}

func TestLoadDefaultsToDisk(t *testing.T) {
	clearCCDEnv(t)
	cfg := Load()
	assert.Equal(t, CacheTypeDisk, cfg.CacheType)
	assert.EqualValues(t, TenGigs, cfg.DiskCacheSize)
}

func TestLoadDirAndSizeFromEnv(t *testing.T) {
	clearCCDEnv(t)
	dir := t.TempDir()
	t.Setenv("CCD_DIR", dir)
	t.Setenv("CCD_CACHE_SIZE", "2G")

	cfg := Load()
	assert.Equal(t, CacheTypeDisk, cfg.CacheType)
	assert.Equal(t, dir, cfg.DiskCacheDir)
	assert.EqualValues(t, 2*1024*1024*1024, cfg.DiskCacheSize)
}

func TestLoadRedisEnvOverride(t *testing.T) {
	clearCCDEnv(t)
	t.Setenv("CCD_REDIS_URL", "redis://localhost:6379")
	cfg := Load()
	assert.Equal(t, CacheTypeRedis, cfg.CacheType)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoadS3EnvOverride(t *testing.T) {
	clearCCDEnv(t)
	t.Setenv("CCD_S3_BUCKET", "mybucket")
	cfg := Load()
	assert.Equal(t, CacheTypeS3, cfg.CacheType)
	assert.Equal(t, "mybucket", cfg.S3Bucket)
	assert.Equal(t, "mybucket.s3.amazonaws.com", cfg.S3Endpoint)
}

func TestLoadFromTOMLFile(t *testing.T) {
	clearCCDEnv(t)
	dir := t.TempDir()
	confPath := filepath.Join(dir, "ccd.toml")
	require.NoError(t, os.WriteFile(confPath, []byte(`
cache_type = "disk"
cache_dir = "/var/cache/ccd"
cache_size = "5G"
force_recache = true
`), 0o644))
	t.Setenv("CCD_CONF", confPath)

	cfg := Load()
	assert.Equal(t, CacheTypeDisk, cfg.CacheType)
	assert.Equal(t, "/var/cache/ccd", cfg.DiskCacheDir)
	assert.EqualValues(t, 5*1024*1024*1024, cfg.DiskCacheSize)
	assert.True(t, cfg.ForceRecache)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	clearCCDEnv(t)
	dir := t.TempDir()
	confPath := filepath.Join(dir, "ccd.toml")
	require.NoError(t, os.WriteFile(confPath, []byte(`
cache_type = "disk"
cache_size = "5G"
`), 0o644))
	t.Setenv("CCD_CONF", confPath)
	t.Setenv("CCD_CACHE_SIZE", "1G")

	cfg := Load()
	assert.EqualValues(t, 1*1024*1024*1024, cfg.DiskCacheSize)
}

func TestCompilerDirBugPreserved(t *testing.T) {
	clearCCDEnv(t)
	dir := t.TempDir()
	confPath := filepath.Join(dir, "ccd.toml")
	require.NoError(t, os.WriteFile(confPath, []byte(`compiler_dir = "/usr/bin/"`), 0o644))
	t.Setenv("CCD_CONF", confPath)

	cfg := Load()
	// The trailing-separator check is always true (OR of two mutually
	// exclusive negations), so "." is appended even though the
	// configured path already ends in "/". This mirrors the upstream
	// behavior verbatim rather than fixing it.
	assert.Equal(t, "/usr/bin/.", cfg.CompilerDir)
}
