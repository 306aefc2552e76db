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
	"fmt"
	"sync"
)

// Mock is a scripted Runner for tests: each call to Run pops the next
// queued Result (or error) in FIFO order and records the Command it
// was given so callers can assert on what would have been spawned.
type Mock struct {
	mu       sync.Mutex
	queue    []mockCall
	Commands []Command
}

type mockCall struct {
	result Result
	err    error
}

// Next queues the Result (and optional error) to return from the next
// call to Run.
func (m *Mock) Next(res Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockCall{result: res, err: err})
}

// Run implements Runner.
func (m *Mock) Run(ctx context.Context, cmd Command) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, cmd)
	if len(m.queue) == 0 {
		return Result{}, fmt.Errorf("procexec: mock has no queued result for %s %v", cmd.Exe, cmd.Args)
	}
	call := m.queue[0]
	m.queue = m.queue[1:]
	return call.result, call.err
}

var _ Runner = (*Mock)(nil)
