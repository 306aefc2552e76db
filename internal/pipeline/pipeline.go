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

// Package pipeline drives one compile request through classification,
// preprocessing, fingerprinting, cache probing, and — on a miss —
// the real compile and cache write. It is the cache-coordination engine
// the rest of ccd exists to serve.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/ccdtools/ccd/internal/adapter"
	"github.com/ccdtools/ccd/internal/bundle"
	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/procexec"
	"github.com/ccdtools/ccd/internal/storage"
)

// Stage names where a Run terminated, matching spec's state diagram.
type Stage string

const (
	StageNotCompilation Stage = "not_compilation"
	StageCannotCache    Stage = "cannot_cache"
	StageHit            Stage = "hit"
	StageMiss           Stage = "miss"
	StageError          Stage = "error"
)

// Request is one classified compile attempt as the daemon received it.
type Request struct {
	Exe     string
	Args    []string // argv after argv[0], not yet response-file-expanded
	Cwd     string
	Env     []string
	Adapter adapter.Adapter

	ForceRecache bool
}

// Outcome is what the daemon reports back to the client, and what it
// feeds into Stats.
type Outcome struct {
	Stage  Stage
	Reason string // set when Stage == StageCannotCache

	ExitCode *int
	Signal   *int
	Stdout   []byte
	Stderr   []byte

	Fingerprint storage.Fingerprint // set once computed (Hashing or later)
	CacheError  bool                // a storage Get/Put failed (treated as Miss), or preprocessing failed
	Recached    bool                // ForceRecache made this a forced Miss

	CacheWriteDuration time.Duration // set on a Miss that wrote the cache
}

// Pipeline holds the collaborators a Run needs: the process substrate
// and the cache backend. It carries no per-request state, so one value
// is shared across all connections/workers (spec's "process substrate
// is immutable after startup").
type Pipeline struct {
	Runner  procexec.Runner
	Storage storage.Storage

	// probe coalesces concurrent cache lookups that share a
	// fingerprint (common when several workers race to build the same
	// header-triggered translation unit) into a single backend Get, so
	// a slow Redis or S3 round trip is paid once rather than once per
	// worker. Each caller still unpacks the shared result into its own
	// Request's output paths.
	probe singleflight.Group
}

// Run advances req through the full state machine and returns the
// terminal Outcome. Cancellation of ctx at any suspension point (spawn,
// await-completion, hash-and-probe, pack-and-store) surfaces as an
// error here; procexec and the disk backend are responsible for
// releasing the resources they acquired (child kill, temp-file removal).
func (p *Pipeline) Run(ctx context.Context, req Request) (Outcome, error) {
	expanded, _ := classify.ExpandResponseFiles(req.Args, req.Cwd)
	inv := classify.Classify(expanded, req.Cwd, req.Adapter.ArgSpec())

	switch inv.Outcome {
	case classify.NotCompilation:
		return p.passThrough(ctx, req, StageNotCompilation, "")
	case classify.CannotCache:
		glog.V(1).Infof("pipeline: not caching %s %v: %s", req.Exe, req.Args, inv.Reason)
		return p.passThrough(ctx, req, StageCannotCache, inv.Reason)
	}

	pre, err := req.Adapter.Preprocess(ctx, p.Runner, req.Exe, inv, req.Cwd, req.Env)
	if err != nil {
		return Outcome{Stage: StageError}, fmt.Errorf("pipeline: preprocess: %w", err)
	}
	if pre.Failed() {
		return Outcome{
			Stage:      StageError,
			ExitCode:   pre.ExitCode,
			Signal:     pre.Signal,
			Stdout:     pre.Stdout,
			Stderr:     pre.Stderr,
			CacheError: true,
		}, nil
	}

	fp, err := computeFingerprint(req.Adapter.Kind(), req.Exe, inv, pre.Preprocessed)
	if err != nil {
		return Outcome{Stage: StageError}, fmt.Errorf("pipeline: fingerprint: %w", err)
	}

	if !req.ForceRecache {
		res, err := p.probeCache(ctx, fp)
		cacheErr := err != nil
		if cacheErr {
			glog.Warningf("pipeline: cache get error, treating as miss: %v", err)
		}
		if !cacheErr && res.Kind == storage.ResultHit {
			if err := bundle.WriteToDisk(res.Bundle, inv.Outputs); err != nil {
				return Outcome{Stage: StageError, Fingerprint: fp}, fmt.Errorf("pipeline: unpack: %w", err)
			}
			zero := 0
			return Outcome{Stage: StageHit, ExitCode: &zero, Fingerprint: fp}, nil
		}
		if cacheErr {
			return p.compileAndStore(ctx, req, inv, pre.Preprocessed, fp, true)
		}
	}

	return p.compileAndStore(ctx, req, inv, pre.Preprocessed, fp, false)
}

// probeCache coalesces concurrent Get calls sharing fp into one
// backend round trip via singleflight.
func (p *Pipeline) probeCache(ctx context.Context, fp storage.Fingerprint) (storage.Result, error) {
	v, err, _ := p.probe.Do(fp.String(), func() (interface{}, error) {
		return p.Storage.Get(ctx, fp)
	})
	if err != nil {
		return storage.Result{}, err
	}
	return v.(storage.Result), nil
}

func (p *Pipeline) compileAndStore(ctx context.Context, req Request, inv classify.Invocation, preprocessed []byte, fp storage.Fingerprint, cacheErrSoFar bool) (Outcome, error) {
	comp, err := req.Adapter.Compile(ctx, p.Runner, req.Exe, inv, preprocessed, req.Cwd, req.Env)
	if err != nil {
		return Outcome{Stage: StageError, Fingerprint: fp}, fmt.Errorf("pipeline: compile: %w", err)
	}
	if comp.Failed() {
		return Outcome{
			Stage:      StageError,
			ExitCode:   comp.ExitCode,
			Signal:     comp.Signal,
			Stdout:     comp.Stdout,
			Stderr:     comp.Stderr,
			Fingerprint: fp,
			CacheError: cacheErrSoFar,
		}, nil
	}

	b, err := bundle.FromDisk(inv.Outputs)
	if err != nil {
		return Outcome{Stage: StageError, Fingerprint: fp}, fmt.Errorf("pipeline: pack: %w", err)
	}
	var writeDuration time.Duration
	if d, err := p.Storage.Put(ctx, fp, b); err != nil {
		glog.Warningf("pipeline: cache put error: %v", err)
		cacheErrSoFar = true
	} else {
		writeDuration = d
	}

	return Outcome{
		Stage:              StageMiss,
		ExitCode:           comp.ExitCode,
		Signal:             comp.Signal,
		Stdout:             comp.Stdout,
		Stderr:             comp.Stderr,
		Fingerprint:        fp,
		CacheError:         cacheErrSoFar,
		Recached:           req.ForceRecache,
		CacheWriteDuration: writeDuration,
	}, nil
}

// passThrough runs the real compiler unmodified for invocations the
// classifier decided not to cache.
func (p *Pipeline) passThrough(ctx context.Context, req Request, stage Stage, reason string) (Outcome, error) {
	res, err := p.Runner.Run(ctx, procexec.Command{Exe: req.Exe, Args: req.Args, Dir: req.Cwd, Env: req.Env})
	if err != nil {
		return Outcome{Stage: StageError, Reason: reason}, fmt.Errorf("pipeline: exec: %w", err)
	}
	return Outcome{
		Stage:    stage,
		Reason:   reason,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}, nil
}
