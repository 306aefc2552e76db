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

// Command ccd is both the forwarding client and, under
// CCD_START_SERVER=1, the daemon itself: one binary plays both roles,
// the same shape cmdline.rs's InternalStartServer variant gives the
// original.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"

	"github.com/ccdtools/ccd/internal/ccdlog"
	"github.com/ccdtools/ccd/internal/clientutil"
	"github.com/ccdtools/ccd/internal/config"
	"github.com/ccdtools/ccd/internal/daemon"
	"github.com/ccdtools/ccd/internal/pipeline"
	"github.com/ccdtools/ccd/internal/procexec"
	"github.com/ccdtools/ccd/internal/storage"
	_ "github.com/ccdtools/ccd/internal/storage/disk"
	"github.com/ccdtools/ccd/internal/wire"
)

// ownName is the name ccd answers to when deciding whether this is a
// plain invocation or a wrapper invocation under a compiler's name.
const ownName = "ccd"

// adminFlagNames is the set of flags that route through the
// administrative cli.App parser rather than the raw compiler-forwarding
// path. Anything else in args[1] is the start of a compiler
// invocation and must never be handed to a general-purpose flag
// parser, since its own flags (-c, -o, -I...) are not ccd's.
var adminFlagNames = map[string]bool{
	"--show-stats": true, "-s": true,
	"--zero-stats": true, "-z": true,
	"--start-server": true,
	"--stop-server":  true,
	"--help":         true, "-h": true,
	"--version": true,
}

func main() {
	cfg := config.Load()
	ccdlog.Configure(ccdlog.ParseLevel(cfg.LogLevel))

	if os.Getenv("CCD_START_SERVER") == "1" {
		os.Exit(runServer(cfg))
	}

	rewritten, wrapped, err := rewriteArgs(os.Args, ownName, cfg.CompilerDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccd: %v\n", err)
		os.Exit(1)
	}

	if wrapped {
		// rewriteArgs already spliced in the resolved compiler exe;
		// bypass the CLI framework entirely.
		os.Exit(runCompileAndExit(cfg, rewritten[1], rewritten[2:]))
	}

	if len(os.Args) > 1 && !adminFlagNames[os.Args[1]] {
		// Plain "ccd <compiler> <args...>" forwarding invocation.
		os.Exit(runCompileAndExit(cfg, os.Args[1], os.Args[2:]))
	}

	app := buildApp(cfg)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	return 1
}

func serverAddr(cfg config.Config) string {
	port := cfg.ServerPort
	if port == 0 {
		port = config.DefaultServerPort
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// spawner re-execs this same binary with CCD_START_SERVER=1 so it
// takes on the daemon role; SpawnDetached itself sets that variable.
func spawner(addr string) error {
	return clientutil.SpawnDetached(selfPath(), nil)
}

// runCompile forwards one compiler invocation to the daemon (spawning
// it if necessary), streams the eventual result to this process's own
// stdio, and returns the exit code the real compiler (or the cache)
// reported.
func runCompile(ctx context.Context, cfg config.Config, exe string, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ccd: couldn't determine working directory: %w", err)
	}

	client := clientutil.New(serverAddr(cfg), spawner)
	_, finished, err := client.RequestCompile(ctx, wire.CompileRequest{
		Exe:          exe,
		Cwd:          cwd,
		Args:         args,
		Env:          os.Environ(),
		ForceRecache: cfg.ForceRecache,
	})
	if err != nil {
		return fmt.Errorf("ccd: %w", err)
	}

	os.Stdout.Write(finished.Finished.Stdout)
	os.Stderr.Write(finished.Finished.Stderr)

	if finished.Finished.HasSignal {
		return fmt.Errorf("ccd: %s terminated by signal %d", exe, finished.Finished.Signal)
	}
	return &exitError{code: int(finished.Finished.ExitCode)}
}

func runCompileAndExit(cfg config.Config, exe string, args []string) int {
	if err := runCompile(context.Background(), cfg, exe, args); err != nil {
		if ee, ok := err.(*exitError); ok {
			return ee.code
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}

type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// runServer is CCD_START_SERVER=1's entry point: build the cache
// pipeline and run the daemon loop until an explicit Shutdown request,
// idle timeout, or SIGINT/SIGTERM.
func runServer(cfg config.Config) int {
	store, err := storage.FromConfig(cfg)
	if err != nil {
		glog.Errorf("ccd: Server startup failed: %v", err)
		return 2
	}
	runner := procexec.Exec{}

	srv, err := daemon.Listen(serverAddr(cfg), daemon.Config{
		Pipeline: &pipeline.Pipeline{Runner: runner, Storage: store},
		Runner:   runner,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Infof("ccd: received shutdown signal")
		srv.Shutdown()
	}()

	if err := srv.Serve(ctx); err != nil {
		glog.Errorf("ccd: server exited: %v", err)
		return 2
	}
	return 0
}
