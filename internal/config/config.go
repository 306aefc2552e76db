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

// Package config resolves ccd's settings from, in ascending priority:
// built-in defaults, a TOML config file, and environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/glog"
	"github.com/pelletier/go-toml/v2"
)

// DefaultServerPort is where the daemon listens absent any override,
// chosen to sit below the IANA ephemeral range (49152-65535).
const DefaultServerPort = 12980

// CacheType selects which Storage backend FromConfig constructs.
type CacheType string

const (
	CacheTypeInvalid CacheType = ""
	CacheTypeDisk    CacheType = "disk"
	CacheTypeRedis   CacheType = "redis"
	CacheTypeS3      CacheType = "s3"
)

// TenGigs is the default disk cache size, unchanged from the original
// sccache default.
const TenGigs = 10 * 1024 * 1024 * 1024

// Config is the fully-resolved set of daemon and client settings.
type Config struct {
	CacheType CacheType

	DiskCacheDir  string
	DiskCacheSize int64

	RedisURL string

	S3Bucket   string
	S3Endpoint string

	NoDaemon     bool
	ForceRecache bool
	MSVCForceZ7  bool

	// CompilerDir, when set, is consulted before PATH when resolving
	// argv[0]-rewrite targets. Preserves a known bug from the original:
	// the trailing-separator check uses OR where AND was intended, so
	// a "." is unconditionally appended regardless of whether the
	// configured path already ends in a separator. Left as-is per the
	// redesign notes. A path without a trailing separator ends up naming
	// a different directory ("/usr/bin" becomes "/usr/bin.").
	CompilerDir string

	LogLevel   string
	ServerPort int
}

// fileConfig mirrors the subset of TOML keys ccd reads from its config
// file, matching config.rs's flat key names.
type fileConfig struct {
	CacheType    string `toml:"cache_type"`
	CacheDir     string `toml:"cache_dir"`
	CacheSize    string `toml:"cache_size"`
	RedisURL     string `toml:"redis_url"`
	S3Bucket     string `toml:"s3_bucket"`
	S3Endpoint   string `toml:"s3_endpoint"`
	NoDaemon     bool   `toml:"no_daemon"`
	ForceRecache bool   `toml:"force_recache"`
	MSVCForceZ7  bool   `toml:"msvc_force_z7"`
	CompilerDir  string `toml:"compiler_dir"`
}

// DefaultDiskCacheDir returns the fallback disk cache location when
// neither the config file nor CCD_DIR name one.
func DefaultDiskCacheDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "ccd")
	}
	return filepath.Join(os.TempDir(), "ccd_cache")
}

// Load resolves Config from CCD_CONF (or ~/.ccd.toml), then applies
// environment overrides, matching config.rs's Config::create() merge
// order: env beats file, file beats built-in default.
func Load() Config {
	fc := readFile()

	cfg := Config{CacheType: CacheTypeInvalid}

	switch fc.CacheType {
	case "disk":
		dir := os.Getenv("CCD_DIR")
		if dir == "" {
			dir = fc.CacheDir
		}
		if dir == "" {
			dir = DefaultDiskCacheDir()
		}
		cfg.CacheType = CacheTypeDisk
		cfg.DiskCacheDir = dir
		cfg.DiskCacheSize = TenGigs
	case "redis":
		cfg.CacheType = CacheTypeRedis
		cfg.RedisURL = fc.RedisURL
	case "s3":
		cfg.CacheType = CacheTypeS3
		cfg.S3Bucket = fc.S3Bucket
		cfg.S3Endpoint = fc.S3Endpoint
	case "":
		// left Invalid; resolved below by legacy env vars or the
		// disk fallback.
	default:
		glog.Errorf("config: cache_type must be 'disk', 'redis', or 's3' (got %q); ignoring", fc.CacheType)
	}

	// Legacy bare-env-var cache type overrides, carried from the
	// original under the CCD_ prefix. Don't add any more of these.
	switch {
	case os.Getenv("CCD_REDIS_URL") != "":
		cfg.CacheType = CacheTypeRedis
		cfg.RedisURL = os.Getenv("CCD_REDIS_URL")
	case os.Getenv("CCD_S3_BUCKET") != "" || os.Getenv("CCD_S3_ENDPOINT") != "":
		bucket := os.Getenv("CCD_S3_BUCKET")
		if bucket != "" {
			endpoint := os.Getenv("CCD_S3_ENDPOINT")
			if endpoint == "" {
				endpoint = bucket + ".s3.amazonaws.com"
			}
			cfg.CacheType = CacheTypeS3
			cfg.S3Bucket = bucket
			cfg.S3Endpoint = endpoint
		}
	case cfg.CacheType == CacheTypeInvalid:
		dir := os.Getenv("CCD_DIR")
		if dir == "" {
			dir = DefaultDiskCacheDir()
		}
		cfg.CacheType = CacheTypeDisk
		cfg.DiskCacheDir = dir
		cfg.DiskCacheSize = TenGigs
	}

	if cfg.CacheType == CacheTypeDisk {
		if size, ok := sizeFromEnv("CCD_CACHE_SIZE"); ok {
			cfg.DiskCacheSize = size
		} else if fc.CacheSize != "" {
			if size, ok := parseSize(fc.CacheSize); ok {
				cfg.DiskCacheSize = size
			}
		}
	}

	cfg.NoDaemon = boolFromEnv("CCD_NO_DAEMON", fc.NoDaemon)
	cfg.ForceRecache = boolFromEnv("CCD_RECACHE", fc.ForceRecache)
	cfg.MSVCForceZ7 = fc.MSVCForceZ7

	if fc.CompilerDir != "" {
		if !endsInSeparator(fc.CompilerDir) || !endsInSeparatorBackslash(fc.CompilerDir) {
			cfg.CompilerDir = fc.CompilerDir + "."
		} else {
			cfg.CompilerDir = fc.CompilerDir
		}
	}

	cfg.LogLevel = os.Getenv("CCD_LOG_LEVEL")
	cfg.ServerPort = DefaultServerPort
	if v := os.Getenv("CCD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.ServerPort = port
		} else {
			glog.Errorf("config: CCD_SERVER_PORT=%q is not a valid port; using %d", v, DefaultServerPort)
		}
	}

	return cfg
}

func readFile() fileConfig {
	path := os.Getenv("CCD_CONF")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fileConfig{}
		}
		path = filepath.Join(home, ".ccd.toml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		glog.Errorf("config: error parsing %s: %v", path, err)
		return fileConfig{}
	}
	return fc
}

func sizeFromEnv(name string) (int64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	return parseSize(v)
}

func boolFromEnv(name string, fallback bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	return v != "0"
}

func endsInSeparator(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '/'
}

func endsInSeparatorBackslash(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '\\'
}
