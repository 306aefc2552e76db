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

// Package classify turns a compiler command line into a decision about
// whether, and how, the invocation can be cached.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// Outcome is the tri-state result of classifying a command line.
type Outcome int

const (
	// Ok means the invocation is a single-input, single-object compile
	// that can be cached. Use Invocation's fields.
	Ok Outcome = iota
	// NotCompilation means the tool should just exec the real compiler
	// and return its exit code; this isn't a compile (e.g. link, -v).
	NotCompilation
	// CannotCache means this is a compile the cache must not handle;
	// Reason is recorded in the daemon's non_cacheable_reasons histogram.
	CannotCache
)

// Invocation is the parsed result of a classified command line.
type Invocation struct {
	Outcome Outcome
	Reason  string // set when Outcome == CannotCache

	Input     string // the single source file, when Outcome == Ok
	Extension string // source-language tag: "c", "c++", or a forced -x value

	// Outputs maps an output-kind tag ("obj", "dwo", ...) to its path.
	// "obj" is always present when Outcome == Ok.
	Outputs map[string]string

	PreprocessorArgs []string // flags relevant only to preprocessing
	CommonArgs       []string // flags relevant to both preprocessing and codegen

	MSVCShowIncludes bool // compiler emits header traces on stderr
}

// ArgSpec tells the classifier which flags are family-specific: which
// ones consume the following token as a value, and which output flag
// (e.g. "-o" for GCC/Clang, "/Fo" for MSVC) sets the obj path.
type ArgSpec struct {
	// TakesValue reports whether arg is a flag that consumes the next
	// token as its value (and both are kept verbatim in CommonArgs).
	TakesValue func(arg string) bool

	// OutputFlag is the flag that introduces the obj output path.
	// Its value is the next token (GCC/Clang-style "-o path"), unless
	// OutputIsPrefixed is set, in which case the path is suffixed onto
	// the flag itself (MSVC-style "/Foout.obj").
	OutputFlag       string
	OutputIsPrefixed bool

	// ExtraForbidden adds family-specific forbidden flags (reason
	// string keyed by flag) on top of the common set every family
	// shares, e.g. Clang-only module flags.
	ExtraForbidden map[string]string
}

var forbiddenReasons = map[string]string{
	"-fcxx-modules":  "clang modules",
	"-fmodules":      "clang modules",
	"-fsyntax-only":  "-fsyntax-only",
	"-fprofile-use":  "pgo",
}

var extToLang = map[string]string{
	"c":   "c",
	"cc":  "c++",
	"cpp": "c++",
	"cxx": "c++",
	"c++": "c++",
}

// Classify parses an already response-file-expanded token sequence
// according to spec. cwd is unused by the GCC-family classifier itself
// (response file expansion, which needs cwd, happens in ExpandResponseFiles
// before Classify is called) but is accepted for symmetry with adapters
// that may need it later.
func Classify(tokens []string, cwd string, spec ArgSpec) Invocation {
	var (
		outputArg      string
		haveOutput     bool
		inputArg       string
		haveInput      bool
		depTarget      string
		haveDepTarget  bool
		common         []string
		preprocessor   []string
		compilation    bool
		splitDwarf     bool
		needDepTarget  bool
		forceLang      string
		haveForceLang  bool
	)

	i := 0
	next := func() (string, bool) {
		if i >= len(tokens) {
			return "", false
		}
		v := tokens[i]
		i++
		return v, true
	}

	for i < len(tokens) {
		arg, _ := next()

		switch {
		case arg == "-c":
			compilation = true
			continue
		case arg == spec.OutputFlag && !spec.OutputIsPrefixed:
			v, ok := next()
			if !ok {
				return Invocation{Outcome: CannotCache, Reason: "no output file"}
			}
			outputArg = v
			haveOutput = true
			continue
		case spec.OutputIsPrefixed && strings.HasPrefix(arg, spec.OutputFlag) && len(arg) > len(spec.OutputFlag):
			outputArg = arg[len(spec.OutputFlag):]
			haveOutput = true
			continue
		case arg == "-gsplit-dwarf":
			splitDwarf = true
			common = append(common, arg)
			continue
		case arg == "-x":
			v, ok := next()
			if !ok {
				return Invocation{Outcome: CannotCache, Reason: "malformed -x"}
			}
			preprocessor = append(preprocessor, arg, v)
			forceLang = v
			haveForceLang = true
			continue
		case arg == "-MF" || arg == "-MQ":
			preprocessor = append(preprocessor, arg)
			if v, ok := next(); ok {
				preprocessor = append(preprocessor, v)
			}
			continue
		case arg == "-MT":
			if v, ok := next(); ok {
				depTarget = v
				haveDepTarget = true
			}
			continue
		case arg == "-M" || arg == "-MM" || arg == "-MD" || arg == "-MMD":
			needDepTarget = true
			preprocessor = append(preprocessor, arg)
			continue
		case forbiddenReasons[arg] != "":
			return Invocation{Outcome: CannotCache, Reason: forbiddenReasons[arg]}
		case spec.ExtraForbidden[arg] != "":
			return Invocation{Outcome: CannotCache, Reason: spec.ExtraForbidden[arg]}
		case strings.HasPrefix(arg, "@"):
			return Invocation{Outcome: CannotCache, Reason: "@file"}
		case spec.TakesValue != nil && spec.TakesValue(arg):
			common = append(common, arg)
			if v, ok := next(); ok {
				common = append(common, v)
			}
			continue
		case arg == "-":
			return Invocation{Outcome: CannotCache, Reason: "input from stdin"}
		case len(arg) >= 2 && strings.HasPrefix(arg, "-"):
			common = append(common, arg)
			continue
		default:
			if haveInput {
				glog.V(1).Infof("classify: multiple input files: %q and %q", inputArg, arg)
				return Invocation{Outcome: CannotCache, Reason: "multiple input files"}
			}
			inputArg = arg
			haveInput = true
		}
	}

	if !compilation {
		return Invocation{Outcome: NotCompilation}
	}

	if !haveInput {
		return Invocation{Outcome: CannotCache, Reason: "no input file"}
	}

	var lang string
	if haveForceLang {
		lang = forceLang
	} else {
		ext := strings.TrimPrefix(filepath.Ext(inputArg), ".")
		l, ok := extToLang[strings.ToLower(ext)]
		if !ok {
			return Invocation{Outcome: CannotCache, Reason: "unknown source extension"}
		}
		lang = l
	}

	if !haveOutput {
		return Invocation{Outcome: CannotCache, Reason: "no output file"}
	}

	outputs := map[string]string{"obj": outputArg}
	if splitDwarf {
		outputs["dwo"] = withExt(outputArg, ".dwo")
	}
	if needDepTarget {
		tgt := outputArg
		if haveDepTarget {
			tgt = depTarget
		}
		preprocessor = append(preprocessor, "-MT", tgt)
	}

	return Invocation{
		Outcome:          Ok,
		Input:            inputArg,
		Extension:        lang,
		Outputs:          outputs,
		PreprocessorArgs: preprocessor,
		CommonArgs:       common,
	}
}

func withExt(path, ext string) string {
	trimmed := strings.TrimSuffix(path, filepath.Ext(path))
	return trimmed + ext
}
