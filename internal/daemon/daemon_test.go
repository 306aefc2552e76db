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
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdtools/ccd/internal/pipeline"
	"github.com/ccdtools/ccd/internal/procexec"
	"github.com/ccdtools/ccd/internal/storage/disk"
	"github.com/ccdtools/ccd/internal/wire"
)

func newTestServer(t *testing.T, runner procexec.Runner, idleTimeout time.Duration) (*Server, string) {
	t.Helper()
	cache, err := disk.New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	srv, err := Listen("127.0.0.1:0", Config{
		Pipeline:    &pipeline.Pipeline{Runner: runner, Storage: cache},
		Runner:      runner,
		PoolSize:    2,
		IdleTimeout: idleTimeout,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})
	return srv, srv.Addr()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeSrc(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("int x;"), 0o644))
	return path
}

func TestDaemonCompileMissThenHit(t *testing.T) {
	m := &procexec.Mock{}
	zero := 0
	m.Next(procexec.Result{ExitCode: &zero, Stdout: []byte("expanded")}, nil)
	m.Next(procexec.Result{ExitCode: &zero}, nil)
	m.Next(procexec.Result{ExitCode: &zero, Stdout: []byte("expanded")}, nil) // second request's preprocess

	_, addr := newTestServer(t, m, time.Minute)
	conn := dial(t, addr)

	dir := t.TempDir()
	src := writeSrc(t, dir, "a.c")
	obj := filepath.Join(dir, "a.o")
	require.NoError(t, os.WriteFile(obj, []byte("object"), 0o644))

	compileReq := wire.Request{Kind: wire.KindCompile, Compile: wire.CompileRequest{
		Exe: "/usr/bin/gcc", Cwd: dir, Args: []string{"-c", src, "-o", obj},
	}}

	require.NoError(t, wire.EncodeRequest(conn, compileReq))
	started, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindCompileStarted, started.Kind)

	finished, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindCompileFinished, finished.Kind)
	assert.EqualValues(t, 0, finished.Finished.ExitCode)

	// Second identical request on a fresh connection should hit.
	conn2 := dial(t, addr)
	require.NoError(t, wire.EncodeRequest(conn2, compileReq))
	started2, err := wire.DecodeResponse(conn2)
	require.NoError(t, err)
	assert.Equal(t, wire.KindCompileStarted, started2.Kind)
	finished2, err := wire.DecodeResponse(conn2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, finished2.Finished.ExitCode)

	require.Len(t, m.Commands, 3, "a hit must not spawn the compile step")
}

func TestDaemonUnrecognizedCompilerRunsDirectly(t *testing.T) {
	m := &procexec.Mock{}
	zero := 0
	m.Next(procexec.Result{ExitCode: &zero, Stdout: []byte("linked ok")}, nil)

	_, addr := newTestServer(t, m, time.Minute)
	conn := dial(t, addr)

	req := wire.Request{Kind: wire.KindCompile, Compile: wire.CompileRequest{
		Exe: "/usr/bin/ld", Args: []string{"-o", "a.out", "a.o"},
	}}
	require.NoError(t, wire.EncodeRequest(conn, req))

	started, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindUnhandledCompile, started.Kind)

	finished, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, []byte("linked ok"), finished.Finished.Stdout)
}

func TestDaemonCannotCachePassesThrough(t *testing.T) {
	m := &procexec.Mock{}
	zero := 0
	m.Next(procexec.Result{ExitCode: &zero}, nil)

	_, addr := newTestServer(t, m, time.Minute)
	conn := dial(t, addr)

	req := wire.Request{Kind: wire.KindCompile, Compile: wire.CompileRequest{
		Exe: "/usr/bin/gcc", Args: []string{"-fsyntax-only", "a.c"},
	}}
	require.NoError(t, wire.EncodeRequest(conn, req))

	started, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindUnhandledCompile, started.Kind)
	assert.Equal(t, "-fsyntax-only", started.UnhandledReason)
}

func TestDaemonZeroAndGetStats(t *testing.T) {
	m := &procexec.Mock{}
	zero := 0
	m.Next(procexec.Result{ExitCode: &zero}, nil)

	_, addr := newTestServer(t, m, time.Minute)
	conn := dial(t, addr)

	require.NoError(t, wire.EncodeRequest(conn, wire.Request{Kind: wire.KindCompile, Compile: wire.CompileRequest{
		Exe: "/usr/bin/gcc", Args: []string{"-fsyntax-only", "a.c"},
	}}))
	_, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	_, err = wire.DecodeResponse(conn)
	require.NoError(t, err)

	require.NoError(t, wire.EncodeRequest(conn, wire.Request{Kind: wire.KindGetStats}))
	resp, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	require.Equal(t, wire.KindStats, resp.Kind)
	assert.EqualValues(t, 1, resp.Stats.CompileRequests)
	assert.EqualValues(t, 1, resp.Stats.NonCacheableReasons["-fsyntax-only"])

	require.NoError(t, wire.EncodeRequest(conn, wire.Request{Kind: wire.KindZeroStats}))
	resp, err = wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.EqualValues(t, 0, resp.Stats.CompileRequests)
}

func TestDaemonShutdownDrainsAndStops(t *testing.T) {
	m := &procexec.Mock{}
	srv, addr := newTestServer(t, m, time.Minute)
	conn := dial(t, addr)

	require.NoError(t, wire.EncodeRequest(conn, wire.Request{Kind: wire.KindShutdown}))
	resp, err := wire.DecodeResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindShuttingDown, resp.Kind)

	select {
	case <-srv.stoppedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after Shutdown request")
	}
}

func TestDaemonIdleTimeoutShutsDown(t *testing.T) {
	m := &procexec.Mock{}
	srv, _ := newTestServer(t, m, 80*time.Millisecond)

	select {
	case <-srv.stoppedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not idle-shutdown")
	}
}

func TestDaemonDuplicatePortFails(t *testing.T) {
	_, addr := newTestServer(t, &procexec.Mock{}, time.Minute)

	cache, err := disk.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	_, err = Listen(addr, Config{Pipeline: &pipeline.Pipeline{Runner: &procexec.Mock{}, Storage: cache}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Server startup failed")
}
