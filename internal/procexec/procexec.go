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

// Package procexec runs compiler subprocesses and reports their outcome
// in the shape the wire protocol needs: exit code, terminating signal,
// stdout and stderr, independent of platform.
package procexec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/golang/glog"
)

// Command describes a subprocess invocation.
type Command struct {
	Exe  string
	Args []string
	Dir  string
	Env  []string // nil means inherit os.Environ()

	Stdin []byte // fed to the child's stdin, if non-nil
}

// Result is the outcome of running a Command, shaped to map directly
// onto the wire protocol's CompileFinished fields.
type Result struct {
	ExitCode *int // nil if the process was killed by a signal
	Signal   *int // nil unless terminated by a signal
	Stdout   []byte
	Stderr   []byte
}

// Runner executes Commands. The real implementation shells out via
// os/exec; tests substitute a scripted fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec is the production Runner, spawning real subprocesses.
type Exec struct{}

var _ Runner = Exec{}

// Run starts cmd.Exe and waits for it to finish or ctx to be done. A
// canceled context kills the child; the killed process's Result is
// still returned with err set to ctx.Err().
func (Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Exe, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	} else {
		c.Env = os.Environ()
	}
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	code, sig := exitStatus(err)
	if sig != nil {
		res.Signal = sig
	} else {
		res.ExitCode = &code
	}

	if ctx.Err() != nil {
		glog.V(1).Infof("procexec: %s %v canceled: %v", cmd.Exe, cmd.Args, ctx.Err())
		return res, ctx.Err()
	}
	return res, nil
}

// exitStatus translates the error from cmd.Run into an exit code and,
// on Unix, a terminating signal number when the process didn't exit
// normally.
func exitStatus(err error) (code int, signal *int) {
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1, nil
	}
	if ws, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			s := int(ws.Signal())
			return 0, &s
		}
		return ws.ExitStatus(), nil
	}
	return exitErr.ExitCode(), nil
}
