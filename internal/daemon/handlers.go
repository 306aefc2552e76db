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

package daemon

import (
	"context"

	"github.com/golang/glog"

	"github.com/ccdtools/ccd/internal/adapter"
	"github.com/ccdtools/ccd/internal/pipeline"
	"github.com/ccdtools/ccd/internal/procexec"
	"github.com/ccdtools/ccd/internal/wire"
)

// handleCompile runs req through the cache pipeline (or, for a
// compiler family the adapter package can't recognize, straight
// through the real compiler) and returns the two responses the wire
// protocol's Compile taxonomy calls for: an immediate first-stage ack
// and the eventual CompileFinished.
func (s *Server) handleCompile(ctx context.Context, req wire.CompileRequest) (wire.Response, wire.Response) {
	s.stats.IncCompileRequests()

	kind, err := adapter.DetectKind(req.Exe)
	if err != nil {
		glog.V(1).Infof("daemon: %v, running %s directly", err, req.Exe)
		return s.runUnmanaged(ctx, req)
	}
	a, err := adapter.ForKind(kind)
	if err != nil {
		return s.runUnmanaged(ctx, req)
	}

	preq := pipeline.Request{
		Exe:          req.Exe,
		Args:         req.Args,
		Cwd:          req.Cwd,
		Env:          req.Env,
		Adapter:      a,
		ForceRecache: req.ForceRecache,
	}

	var out pipeline.Outcome
	var runErr error
	if poolErr := s.pool.Run(ctx, func() {
		out, runErr = s.pipeline.Run(ctx, preq)
	}); poolErr != nil {
		return wire.Response{Kind: wire.KindUnhandledCompile, UnhandledReason: "canceled"},
			wire.Response{Kind: wire.KindCompileFinished, Finished: wire.CompileFinished{ExitCode: 2}}
	}

	if runErr != nil {
		glog.Warningf("daemon: pipeline error for %s: %v", req.Exe, runErr)
		return wire.Response{Kind: wire.KindUnhandledCompile, UnhandledReason: "internal error"},
			wire.Response{Kind: wire.KindCompileFinished, Finished: wire.CompileFinished{ExitCode: 2}}
	}

	return s.respondFromOutcome(out)
}

// runUnmanaged execs req verbatim with no caching, for an exe the
// adapter package doesn't recognize as a known compiler family.
func (s *Server) runUnmanaged(ctx context.Context, req wire.CompileRequest) (wire.Response, wire.Response) {
	started := wire.Response{Kind: wire.KindUnhandledCompile, UnhandledReason: "unrecognized compiler"}

	var res procexec.Result
	var err error
	poolErr := s.pool.Run(ctx, func() {
		res, err = s.runner.Run(ctx, procexec.Command{Exe: req.Exe, Args: req.Args, Dir: req.Cwd, Env: req.Env})
	})
	s.stats.IncRequestsExecuted()
	if poolErr != nil || err != nil {
		return started, wire.Response{Kind: wire.KindCompileFinished, Finished: wire.CompileFinished{ExitCode: 2}}
	}

	finished := wire.CompileFinished{Stdout: res.Stdout, Stderr: res.Stderr}
	if res.ExitCode != nil {
		finished.ExitCode = int32(*res.ExitCode)
	}
	if res.Signal != nil {
		finished.HasSignal = true
		finished.Signal = int32(*res.Signal)
	}
	return started, wire.Response{Kind: wire.KindCompileFinished, Finished: finished}
}

// respondFromOutcome translates a pipeline.Outcome into the two wire
// responses and folds its effect into the running statistics.
func (s *Server) respondFromOutcome(out pipeline.Outcome) (wire.Response, wire.Response) {
	var started wire.Response

	switch out.Stage {
	case pipeline.StageNotCompilation:
		started = wire.Response{Kind: wire.KindUnhandledCompile}
	case pipeline.StageCannotCache:
		s.stats.IncNonCacheableReason(out.Reason)
		started = wire.Response{Kind: wire.KindUnhandledCompile, UnhandledReason: out.Reason}
	case pipeline.StageHit:
		s.stats.IncCacheHits()
		started = wire.Response{Kind: wire.KindCompileStarted}
	case pipeline.StageMiss:
		if out.Recached {
			s.stats.IncForcedRecaches()
		} else {
			s.stats.IncCacheMisses()
		}
		s.stats.AddCacheWriteDuration(out.CacheWriteDuration)
		started = wire.Response{Kind: wire.KindCompileStarted}
	case pipeline.StageError:
		started = wire.Response{Kind: wire.KindUnhandledCompile, UnhandledReason: "compile failed"}
	}
	if out.CacheError {
		s.stats.IncCacheErrors()
	}
	s.stats.IncRequestsExecuted()

	finished := wire.CompileFinished{Stdout: out.Stdout, Stderr: out.Stderr}
	if out.ExitCode != nil {
		finished.ExitCode = int32(*out.ExitCode)
	}
	if out.Signal != nil {
		finished.HasSignal = true
		finished.Signal = int32(*out.Signal)
	}
	return started, wire.Response{Kind: wire.KindCompileFinished, Finished: finished}
}
