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
	"os"

	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/procexec"
)

// msvcArgsWithValue is a representative subset of cl.exe's value-taking
// switches, not an exhaustive table; see spec's Out of scope note on
// MSVC/Clang argument tables beyond this subset.
var msvcArgsWithValue = map[string]bool{
	"/I": true, "/D": true, "/U": true, "/FI": true,
}

// msvcForceLangFlag maps a source-language tag to the /Tc or /Tp flag
// that forces cl.exe to treat stdin-less input as that language, used
// on the compile step where the preprocessed text is handed back as a
// plain file rather than piped in (cl.exe has no "/x" preprocessed-input
// language tag the way gcc/clang do).
var msvcForceLangFlag = map[string]string{
	"c":   "/Tc",
	"c++": "/Tp",
}

// MSVC is a representative, non-exhaustive Adapter for cl.exe: unlike
// GCC/Clang, cl.exe has no preprocess-to-stdout or compile-from-stdin
// mode, so both steps round-trip through a temp file.
type MSVC struct{}

var _ Adapter = MSVC{}

func (MSVC) Kind() Kind { return KindMSVC }

func (MSVC) ArgSpec() classify.ArgSpec {
	return classify.ArgSpec{
		TakesValue:       func(a string) bool { return msvcArgsWithValue[a] },
		OutputFlag:       "/Fo",
		OutputIsPrefixed: true,
	}
}

func (MSVC) Preprocess(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, cwd string, env []string) (PreprocessResult, error) {
	tmp, err := os.CreateTemp("", "ccd-msvc-pp-*.i")
	if err != nil {
		return PreprocessResult{}, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{"/P", "/Fi" + tmpPath}
	args = append(args, inv.PreprocessorArgs...)
	args = append(args, inv.CommonArgs...)
	args = append(args, inv.Input)

	res, err := runner.Run(ctx, procexec.Command{Exe: exe, Args: args, Dir: cwd, Env: env})
	if err != nil {
		return PreprocessResult{}, err
	}

	result := PreprocessResult{
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
	}
	if result.Failed() {
		result.Stdout = res.Stdout
		return result, nil
	}

	pp, err := os.ReadFile(tmpPath)
	if err != nil {
		return PreprocessResult{}, err
	}
	result.Preprocessed = pp
	result.Stdout = res.Stdout
	return result, nil
}

func (MSVC) Compile(ctx context.Context, runner procexec.Runner, exe string, inv classify.Invocation, preprocessed []byte, cwd string, env []string) (CompileResult, error) {
	ext := ".i"
	if inv.Extension == "c++" {
		ext = ".ii"
	}
	tmp, err := os.CreateTemp("", "ccd-msvc-src-*"+ext)
	if err != nil {
		return CompileResult{}, err
	}
	tmpPath := tmp.Name()
	_, werr := tmp.Write(preprocessed)
	cerr := tmp.Close()
	defer os.Remove(tmpPath)
	if werr != nil {
		return CompileResult{}, werr
	}
	if cerr != nil {
		return CompileResult{}, cerr
	}

	langFlag := msvcForceLangFlag[inv.Extension]
	args := []string{"/c", "/Fo" + inv.Outputs["obj"]}
	if langFlag != "" {
		args = append(args, langFlag+tmpPath)
	} else {
		args = append(args, tmpPath)
	}
	args = append(args, inv.CommonArgs...)

	res, err := runner.Run(ctx, procexec.Command{Exe: exe, Args: args, Dir: cwd, Env: env})
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
