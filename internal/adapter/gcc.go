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
	"fmt"

	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/procexec"
)

// gccArgsWithValue lists flags that consume the following token as a
// value, taken from the family's real argument table.
var gccArgsWithValue = map[string]bool{
	"--param": true, "-A": true, "-D": true, "-F": true, "-G": true,
	"-I": true, "-L": true, "-U": true, "-V": true,
	"-Xassembler": true, "-Xlinker": true, "-Xpreprocessor": true,
	"-aux-info": true, "-b": true, "-idirafter": true, "-iframework": true,
	"-imacros": true, "-imultilib": true, "-include": true,
	"-install_name": true, "-iprefix": true, "-iquote": true,
	"-isysroot": true, "-isystem": true, "-iwithprefix": true,
	"-iwithprefixbefore": true, "-u": true,
}

// gccCppOutputTag maps a source-language tag to the "already
// preprocessed" -x tag the compile step must pass so the compiler
// doesn't re-run the preprocessor on its own stdin.
var gccCppOutputTag = map[string]string{
	"c":   "cpp-output",
	"c++": "c++-cpp-output",
}

// GCC is the Adapter for gcc and gcc-compatible front ends.
type GCC struct{}

var _ Adapter = GCC{}

func (GCC) Kind() Kind { return KindGCC }

func (GCC) ArgSpec() classify.ArgSpec {
	return classify.ArgSpec{
		TakesValue: func(a string) bool { return gccArgsWithValue[a] },
		OutputFlag: "-o",
	}
}

func (a GCC) Preprocess(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, cwd string, env []string) (PreprocessResult, error) {
	args := []string{"-E"}
	args = append(args, inv.PreprocessorArgs...)
	args = append(args, inv.CommonArgs...)
	args = append(args, inv.Input)

	res, err := runner.Run(ctx, procexec.Command{Exe: exe, Args: args, Dir: cwd, Env: env})
	if err != nil {
		return PreprocessResult{}, err
	}
	return PreprocessResult{
		Preprocessed: res.Stdout,
		Stderr:       res.Stderr,
		ExitCode:     res.ExitCode,
		Signal:       res.Signal,
	}, nil
}

func (a GCC) Compile(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, preprocessed []byte, cwd string, env []string) (CompileResult, error) {
	tag, ok := gccCppOutputTag[inv.Extension]
	if !ok {
		return CompileResult{}, fmt.Errorf("adapter: no preprocessed-input tag for language %q", inv.Extension)
	}

	args := []string{"-c", "-x", tag, "-", "-o", inv.Outputs["obj"]}
	args = append(args, inv.CommonArgs...)

	res, err := runner.Run(ctx, procexec.Command{
		Exe: exe, Args: args, Dir: cwd, Env: env, Stdin: preprocessed,
	})
	if err != nil {
		return CompileResult{}, err
	}
	return CompileResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
	}, nil
}
