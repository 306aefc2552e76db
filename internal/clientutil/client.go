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

// Package clientutil is the forwarding client's half of the wire
// protocol: connect to a running daemon, spawning one detached and
// retrying if none answers, then issue one request and read back its
// response(s). Grounded on spec.md §4.7's "Startup and discovery"
// paragraph (connect_with_retry in the original implementation).
package clientutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/golang/glog"

	"github.com/ccdtools/ccd/internal/wire"
)

// Spawner starts a detached daemon process listening on addr. cmd/ccd
// supplies the real implementation (re-exec itself with
// CCD_START_SERVER=1 set); tests supply a fake that starts an in-process
// server instead of a child process.
type Spawner func(addr string) error

// Client issues requests against one daemon endpoint, spawning and
// retrying as needed.
type Client struct {
	Addr    string
	Spawn   Spawner
	Dial    func(ctx context.Context, addr string) (net.Conn, error)
	Backoff []time.Duration
}

// DefaultBackoff is spec's "bounded backoff": a handful of increasing
// retries over about two seconds, long enough for a freshly spawned
// daemon to bind its listener.
var DefaultBackoff = []time.Duration{
	20 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond,
	250 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second,
}

func defaultDial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// New returns a Client with the standard TCP dialer and backoff
// schedule.
func New(addr string, spawn Spawner) *Client {
	return &Client{Addr: addr, Spawn: spawn, Dial: defaultDial, Backoff: DefaultBackoff}
}

// connect dials Addr, spawning a daemon and retrying with backoff if
// nothing answers yet.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	conn, err := c.Dial(ctx, c.Addr)
	if err == nil {
		return conn, nil
	}

	glog.V(1).Infof("clientutil: no daemon at %s (%v), spawning one", c.Addr, err)
	if spawnErr := c.Spawn(c.Addr); spawnErr != nil {
		return nil, fmt.Errorf("clientutil: spawn daemon: %w", spawnErr)
	}

	backoff := c.Backoff
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	var lastErr error
	for _, d := range backoff {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		conn, err = c.Dial(ctx, c.Addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("clientutil: daemon at %s never became reachable: %w", c.Addr, lastErr)
}

// RequestCompile runs one Compile round trip, returning the two
// responses the wire protocol's Compile taxonomy always produces.
// On any failure the whole round trip is retried exactly once. The
// retry dials again and spawns a new daemon only if nothing answers;
// a daemon that still accepts connections is reused, not replaced.
func (c *Client) RequestCompile(ctx context.Context, req wire.CompileRequest) (wire.Response, wire.Response, error) {
	started, finished, err := c.tryCompile(ctx, req)
	if err == nil {
		return started, finished, nil
	}
	glog.Warningf("clientutil: compile round trip failed (%v), retrying once", err)
	return c.tryCompile(ctx, req)
}

func (c *Client) tryCompile(ctx context.Context, req wire.CompileRequest) (wire.Response, wire.Response, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return wire.Response{}, wire.Response{}, err
	}
	defer conn.Close()

	if err := wire.EncodeRequest(conn, wire.Request{Kind: wire.KindCompile, Compile: req}); err != nil {
		return wire.Response{}, wire.Response{}, fmt.Errorf("clientutil: send compile: %w", err)
	}
	started, err := wire.DecodeResponse(conn)
	if err != nil {
		return wire.Response{}, wire.Response{}, fmt.Errorf("clientutil: read first response: %w", err)
	}
	finished, err := wire.DecodeResponse(conn)
	if err != nil {
		return wire.Response{}, wire.Response{}, fmt.Errorf("clientutil: read second response: %w", err)
	}
	return started, finished, nil
}

// RequestStats issues GetStats.
func (c *Client) RequestStats(ctx context.Context) (wire.StatsSnapshot, error) {
	return c.simpleStatsRequest(ctx, wire.KindGetStats)
}

// RequestZeroStats issues ZeroStats, returning the snapshot taken
// immediately after the reset.
func (c *Client) RequestZeroStats(ctx context.Context) (wire.StatsSnapshot, error) {
	return c.simpleStatsRequest(ctx, wire.KindZeroStats)
}

func (c *Client) simpleStatsRequest(ctx context.Context, kind wire.RequestKind) (wire.StatsSnapshot, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return wire.StatsSnapshot{}, err
	}
	defer conn.Close()

	if err := wire.EncodeRequest(conn, wire.Request{Kind: kind}); err != nil {
		return wire.StatsSnapshot{}, fmt.Errorf("clientutil: send request: %w", err)
	}
	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		return wire.StatsSnapshot{}, fmt.Errorf("clientutil: read response: %w", err)
	}
	if resp.Kind != wire.KindStats {
		return wire.StatsSnapshot{}, fmt.Errorf("clientutil: unexpected response kind %d", resp.Kind)
	}
	return resp.Stats, nil
}

// RequestShutdown issues an explicit Shutdown, returning the stats
// snapshot the daemon reported before it began draining.
func (c *Client) RequestShutdown(ctx context.Context) (wire.StatsSnapshot, error) {
	conn, err := c.Dial(ctx, c.Addr)
	if err != nil {
		// No daemon running is not an error from the caller's
		// perspective: there is nothing to shut down.
		return wire.StatsSnapshot{}, nil
	}
	defer conn.Close()

	if err := wire.EncodeRequest(conn, wire.Request{Kind: wire.KindShutdown}); err != nil {
		return wire.StatsSnapshot{}, fmt.Errorf("clientutil: send shutdown: %w", err)
	}
	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		return wire.StatsSnapshot{}, fmt.Errorf("clientutil: read response: %w", err)
	}
	return resp.Stats, nil
}

// SpawnDetached starts exe with args as a session-detached background
// process with CCD_START_SERVER=1 set, the same "internal start
// server" trampoline spec.md's "Startup and discovery" describes: the
// forwarding client re-execs itself so the daemon inherits no
// controlling terminal and outlives the invoking shell.
func SpawnDetached(exe string, args []string) error {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), "CCD_START_SERVER=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clientutil: spawn %s: %w", exe, err)
	}
	return cmd.Process.Release()
}
