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

// Package adapter supplies per-compiler-family policy: how to split a
// classified invocation into a preprocess step and a compile step, and
// which flags table the classifier should use to get there.
package adapter

import (
	"context"
	"fmt"

	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/procexec"
)

// Kind names a compiler family.
type Kind string

const (
	KindGCC   Kind = "gcc"
	KindClang Kind = "clang"
	KindMSVC  Kind = "msvc"
)

// PreprocessResult is the outcome of running the preprocessor step.
type PreprocessResult struct {
	Preprocessed []byte // stdout, the expanded translation unit
	Stdout       []byte // what the client should see, absent the expanded text
	Stderr       []byte
	ExitCode     *int
	Signal       *int
}

// Failed reports whether the preprocessor exited abnormally.
func (r PreprocessResult) Failed() bool {
	return r.Signal != nil || r.ExitCode == nil || *r.ExitCode != 0
}

// CompileResult is the outcome of running the real compile step.
type CompileResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode *int
	Signal   *int
}

// Failed reports whether the compile exited abnormally.
func (r CompileResult) Failed() bool {
	return r.Signal != nil || r.ExitCode == nil || *r.ExitCode != 0
}

// Adapter is per-family compiler policy, grounded on spec §4.2: a
// classifier arg table plus the two process-spawning steps that turn a
// classified invocation into cacheable cache-key material and an
// on-disk object file.
type Adapter interface {
	Kind() Kind

	// ArgSpec parameterizes classify.Classify for this family.
	ArgSpec() classify.ArgSpec

	// Preprocess expands inv.Input through the compiler's preprocessor,
	// capturing stdout as the text the cache key is hashed over.
	Preprocess(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, cwd string, env []string) (PreprocessResult, error)

	// Compile feeds preprocessed bytes back through the compiler to
	// produce the real object file (and any sibling outputs).
	Compile(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, preprocessed []byte, cwd string, env []string) (CompileResult, error)
}

// ForKind returns the built-in Adapter for name, or an error if name
// doesn't match one of the known families.
func ForKind(k Kind) (Adapter, error) {
	switch k {
	case KindGCC:
		return GCC{}, nil
	case KindClang:
		return Clang{}, nil
	case KindMSVC:
		return MSVC{}, nil
	default:
		return nil, fmt.Errorf("adapter: unknown compiler kind %q", k)
	}
}
