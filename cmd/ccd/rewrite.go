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

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// rewriteArgs implements ccd's argv[0]-rewrite convention: when ccd is
// copied or symlinked under a compiler's own name (cc, gcc, clang...)
// and invoked that way, it must discover the real compiler on PATH and
// treat this invocation as "ccd <real-compiler> <original args>"
// rather than as an administrative command.
//
// Grounded on cmdline.rs's parse(): if the running binary's own name
// doesn't match the tool's name, resolve the invoked name against
// PATH, excluding this binary's own directory so it can't resolve back
// to itself, and splice the result in as if the user had typed
// "ccd <resolved-exe> <args...>".
//
// args is os.Args. ownName is the base name ccd's own binary answers
// to ("ccd"); compilerDir, when non-empty, is config's CompilerDir,
// consulted before PATH.
func rewriteArgs(args []string, ownName, compilerDir string) (rewritten []string, wrapped bool, err error) {
	if len(args) == 0 {
		return args, false, nil
	}

	self, err := os.Executable()
	if err != nil {
		// Can't determine our own identity; leave args untouched and
		// let normal administrative-flag parsing run.
		return args, false, nil
	}
	invokedName := strings.ToLower(filepath.Base(self))
	if invokedName == ownName {
		return args, false, nil
	}

	exeFilename := filepath.Base(args[0])
	if compilerDir != "" {
		candidate := filepath.Join(compilerDir, exeFilename)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return prepend(ownName, candidate, args[1:]), true, nil
		}
	}

	resolved, err := exec.LookPath(exeFilename)
	if err != nil {
		return nil, false, &wrapperNotFoundError{name: exeFilename}
	}

	selfReal, err1 := filepath.EvalSymlinks(self)
	resolvedReal, err2 := filepath.EvalSymlinks(resolved)
	if err1 == nil && err2 == nil && selfReal == resolvedReal {
		// PATH resolved straight back to this binary (ccd's own
		// directory is ahead of the real compiler's on PATH). Retry
		// with that directory excluded, exactly as the original's
		// canonicalize-and-filter fallback does.
		selfDir := filepath.Dir(selfReal)
		filtered := filterPathEntry(os.Getenv("PATH"), selfDir)
		resolved, err = lookPathIn(exeFilename, filtered)
		if err != nil {
			return nil, false, &wrapperNotFoundError{name: exeFilename}
		}
	}

	return prepend(ownName, resolved, args[1:]), true, nil
}

func prepend(ownName, resolvedExe string, rest []string) []string {
	out := make([]string, 0, len(rest)+2)
	out = append(out, ownName, resolvedExe)
	return append(out, rest...)
}

func filterPathEntry(path, exclude string) string {
	parts := filepath.SplitList(path)
	kept := parts[:0]
	for _, p := range parts {
		if p != exclude {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, string(os.PathListSeparator))
}

func lookPathIn(name, path string) (string, error) {
	restore := os.Getenv("PATH")
	os.Setenv("PATH", path)
	defer os.Setenv("PATH", restore)
	return exec.LookPath(name)
}

type wrapperNotFoundError struct{ name string }

func (e *wrapperNotFoundError) Error() string {
	return "ccd was invoked as wrapper '" + e.name + "', but no other binary of that name was found on PATH"
}
