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

package adapter

import (
	"context"

	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/procexec"
)

// clangExtraForbidden are extra flags that make an invocation
// non-cacheable under Clang (-fcxx-modules is also in classify's common
// forbidden set, so every family rejects it): module builds don't have
// a single preprocessed translation unit to hash, so they can't reuse
// the GCC split.
var clangExtraForbidden = map[string]string{
	"-fmodules-cache-path": "clang modules",
	"-fcxx-modules":        "clang modules",
}

// Clang reuses the GCC-compatible argument table and preprocess/compile
// shape, adding clang-only forbidden flags.
type Clang struct{}

var _ Adapter = Clang{}

func (Clang) Kind() Kind { return KindClang }

func (Clang) ArgSpec() classify.ArgSpec {
	spec := GCC{}.ArgSpec()
	spec.ExtraForbidden = clangExtraForbidden
	return spec
}

func (c Clang) Preprocess(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, cwd string, env []string) (PreprocessResult, error) {
	return GCC{}.Preprocess(ctx, runner, exe, inv, cwd, env)
}

func (c Clang) Compile(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, preprocessed []byte, cwd string, env []string) (CompileResult, error) {
	return GCC{}.Compile(ctx, runner, exe, inv, preprocessed, cwd, env)
}
