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

package procexec

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell assumed")
	}
	res, err := (Exec{}).Run(context.Background(), Command{
		Exe:  "/bin/sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Nil(t, res.Signal)
}

func TestExecRunNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell assumed")
	}
	res, err := (Exec{}).Run(context.Background(), Command{
		Exe:  "/bin/sh",
		Args: []string{"-c", "exit 7"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 7, *res.ExitCode)
}

func TestExecRunStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell assumed")
	}
	res, err := (Exec{}).Run(context.Background(), Command{
		Exe:   "/bin/cat",
		Stdin: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(res.Stdout))
}

func TestExecRunContextCanceled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell assumed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (Exec{}).Run(ctx, Command{Exe: "/bin/sleep", Args: []string{"5"}})
	assert.Error(t, err)
}

func TestMockRunRecordsCommandAndReplaysQueue(t *testing.T) {
	m := &Mock{}
	code := 0
	m.Next(Result{ExitCode: &code, Stdout: []byte("first")}, nil)
	code2 := 1
	m.Next(Result{ExitCode: &code2, Stderr: []byte("second")}, nil)

	res1, err := m.Run(context.Background(), Command{Exe: "cc", Args: []string{"-E", "a.c"}})
	require.NoError(t, err)
	assert.Equal(t, "first", string(res1.Stdout))

	res2, err := m.Run(context.Background(), Command{Exe: "cc", Args: []string{"-c", "a.c"}})
	require.NoError(t, err)
	assert.Equal(t, "second", string(res2.Stderr))

	require.Len(t, m.Commands, 2)
	assert.Equal(t, []string{"-E", "a.c"}, m.Commands[0].Args)
	assert.Equal(t, []string{"-c", "a.c"}, m.Commands[1].Args)
}

func TestMockRunUnscripted(t *testing.T) {
	m := &Mock{}
	_, err := m.Run(context.Background(), Command{Exe: "cc"})
	assert.Error(t, err)
}
