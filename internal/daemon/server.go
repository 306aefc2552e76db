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

// Package daemon is the reactor: it accepts loopback connections, runs
// each through the wire protocol, and dispatches Compile requests into
// the cache pipeline via a bounded worker pool. One goroutine per
// connection plus a fixed worker pool stands in for spec's "single
// reactor thread plus worker pool for blocking I/O" model — Go's
// scheduler multiplexes the per-connection goroutines onto OS threads
// the way a single-threaded reactor would multiplex callbacks, without
// needing an explicit event loop of our own.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/ccdtools/ccd/internal/pipeline"
	"github.com/ccdtools/ccd/internal/procexec"
	"github.com/ccdtools/ccd/internal/wire"
)

// DefaultIdleTimeout is spec's documented default.
const DefaultIdleTimeout = 10 * time.Minute

// Config configures a Server.
type Config struct {
	Pipeline    *pipeline.Pipeline
	Runner      procexec.Runner
	PoolSize    int
	IdleTimeout time.Duration // 0 means DefaultIdleTimeout
}

// Server owns the listener and dispatches every accepted connection.
type Server struct {
	ln       net.Listener
	pipeline *pipeline.Pipeline
	runner   procexec.Runner
	pool     *Pool
	stats    *Stats

	idleTimeout time.Duration
	inFlight    int32

	connWG       sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stoppedCh    chan struct{}
	activityCh   chan struct{}
}

// Listen binds addr (e.g. "127.0.0.1:0" for an ephemeral port) and
// constructs a Server around it. The caller reads the bound port back
// via Addr() before publishing it through its own discovery mechanism.
func Listen(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: Server startup failed: %w", err)
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 4
	}
	return &Server{
		ln:          ln,
		pipeline:    cfg.Pipeline,
		runner:      cfg.Runner,
		pool:        NewPool(poolSize),
		stats:       NewStats(),
		idleTimeout: idle,
		shutdownCh:  make(chan struct{}),
		stoppedCh:   make(chan struct{}),
		activityCh:  make(chan struct{}, 1),
	}, nil
}

// Addr returns the bound listener address (host:port).
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve runs the accept loop until Shutdown is called, the idle
// timeout fires with no in-flight work, or ctx is canceled. It always
// returns after the listener is closed and every connection goroutine
// and pool worker has drained.
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.stoppedCh)
	defer s.pool.Close()

	connCh := make(chan net.Conn)
	acceptErrCh := make(chan error, 1)
	go func() {
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				acceptErrCh <- err
				return
			}
			connCh <- conn
		}
	}()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	resetIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(s.idleTimeout)
	}

	for {
		select {
		case conn := <-connCh:
			s.connWG.Add(1)
			go func() {
				defer s.connWG.Done()
				s.handleConn(ctx, conn)
			}()

		case err := <-acceptErrCh:
			s.connWG.Wait()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err

		case <-s.activityCh:
			// A connection's in-flight count reached zero; restart the
			// idle clock from now rather than from whenever Serve last
			// woke up for an unrelated reason.
			if atomic.LoadInt32(&s.inFlight) == 0 {
				resetIdle()
			}

		case <-idle.C:
			if atomic.LoadInt32(&s.inFlight) == 0 {
				glog.Infof("daemon: idle timeout, shutting down")
				s.ln.Close()
				s.connWG.Wait()
				return nil
			}
			idle.Reset(s.idleTimeout)

		case <-s.shutdownCh:
			s.ln.Close()
			s.connWG.Wait()
			return nil

		case <-ctx.Done():
			s.ln.Close()
			s.connWG.Wait()
			return ctx.Err()
		}
	}
}

// Shutdown requests a graceful stop: Serve drains in-flight
// connections, closes the listener, and returns. Safe to call more
// than once or concurrently with Serve.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Wait blocks until Serve has returned.
func (s *Server) Wait() { <-s.stoppedCh }

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		req, err := wire.DecodeRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				glog.V(1).Infof("daemon: decode request: %v", err)
			}
			return
		}

		atomic.AddInt32(&s.inFlight, 1)
		shuttingDown := s.dispatch(ctx, conn, req)
		if atomic.AddInt32(&s.inFlight, -1) == 0 {
			select {
			case s.activityCh <- struct{}{}:
			default:
			}
		}

		if shuttingDown {
			return
		}
	}
}

// dispatch handles one request on conn and reports whether the
// connection (and, for Shutdown, the whole server) should now close.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, req wire.Request) bool {
	switch req.Kind {
	case wire.KindZeroStats:
		s.stats.Reset()
		s.send(conn, wire.Response{Kind: wire.KindStats, Stats: s.stats.Snapshot()})
		return false

	case wire.KindGetStats:
		s.send(conn, wire.Response{Kind: wire.KindStats, Stats: s.stats.Snapshot()})
		return false

	case wire.KindShutdown:
		s.send(conn, wire.Response{Kind: wire.KindShuttingDown, Stats: s.stats.Snapshot()})
		s.Shutdown()
		return true

	case wire.KindCompile:
		started, finished := s.handleCompile(ctx, req.Compile)
		if !s.send(conn, started) {
			return false
		}
		s.send(conn, finished)
		return false

	default:
		glog.Warningf("daemon: unknown request kind %d", req.Kind)
		return false
	}
}

func (s *Server) send(conn net.Conn, resp wire.Response) bool {
	if err := wire.EncodeResponse(conn, resp); err != nil {
		glog.V(1).Infof("daemon: encode response: %v", err)
		return false
	}
	return true
}
