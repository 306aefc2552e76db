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

package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gccValueArgs = map[string]bool{
	"--param": true, "-A": true, "-D": true, "-F": true, "-G": true,
	"-I": true, "-L": true, "-U": true, "-Xassembler": true, "-Xlinker": true,
	"-include": true, "-isystem": true, "-isysroot": true,
}

func gccSpec() ArgSpec {
	return ArgSpec{
		TakesValue: func(a string) bool { return gccValueArgs[a] },
		OutputFlag: "-o",
	}
}

func TestClassifySimple(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-o", "foo.o"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, "foo.c", inv.Input)
	assert.Equal(t, "c", inv.Extension)
	assert.Equal(t, "foo.o", inv.Outputs["obj"])
	assert.Len(t, inv.Outputs, 1)
	assert.Empty(t, inv.PreprocessorArgs)
	assert.Empty(t, inv.CommonArgs)
}

func TestClassifySplitDwarf(t *testing.T) {
	inv := Classify([]string{"-gsplit-dwarf", "-c", "foo.cpp", "-o", "foo.o"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, "c++", inv.Extension)
	assert.Equal(t, "foo.o", inv.Outputs["obj"])
	assert.Equal(t, "foo.dwo", inv.Outputs["dwo"])
	assert.Equal(t, []string{"-gsplit-dwarf"}, inv.CommonArgs)
}

func TestClassifyExtraFlags(t *testing.T) {
	inv := Classify([]string{"-c", "foo.cc", "-fabc", "-o", "foo.o", "-mxyz"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-fabc", "-mxyz"}, inv.CommonArgs)
}

func TestClassifyValueFlags(t *testing.T) {
	inv := Classify([]string{"-c", "foo.cxx", "-fabc", "-I", "include", "-o", "foo.o", "-include", "file"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-fabc", "-I", "include", "-include", "file"}, inv.CommonArgs)
}

func TestClassifyPreprocessorArgs(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-fabc", "-MF", "file", "-o", "foo.o", "-MQ", "abc"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-MF", "file", "-MQ", "abc"}, inv.PreprocessorArgs)
	assert.Equal(t, []string{"-fabc"}, inv.CommonArgs)
}

func TestClassifyExplicitDepTarget(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-MT", "depfile", "-fabc", "-MF", "file", "-o", "foo.o"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-MF", "file"}, inv.PreprocessorArgs)
}

func TestClassifyExplicitDepTargetNeeded(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-MT", "depfile", "-fabc", "-MF", "file", "-o", "foo.o", "-MD"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-MF", "file", "-MD", "-MT", "depfile"}, inv.PreprocessorArgs)
}

func TestClassifyDepTargetSynthesized(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-fabc", "-MF", "file", "-o", "foo.o", "-MD"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, []string{"-MF", "file", "-MD", "-MT", "foo.o"}, inv.PreprocessorArgs)
}

func TestClassifyEmptyIsNotCompilation(t *testing.T) {
	inv := Classify(nil, ".", gccSpec())
	assert.Equal(t, NotCompilation, inv.Outcome)
}

func TestClassifyNoCFlag(t *testing.T) {
	inv := Classify([]string{"-o", "foo"}, ".", gccSpec())
	assert.Equal(t, NotCompilation, inv.Outcome)
}

func TestClassifyTooManyInputs(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-o", "foo.o", "bar.c"}, ".", gccSpec())
	require.Equal(t, CannotCache, inv.Outcome)
	assert.Equal(t, "multiple input files", inv.Reason)
}

func TestClassifyClangModules(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-fcxx-modules", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, "clang modules", inv.Reason)
	inv = Classify([]string{"-c", "foo.c", "-fmodules", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, "clang modules", inv.Reason)
}

func TestClassifyPGO(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "-fprofile-use", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, "pgo", inv.Reason)
}

func TestClassifyResponseFileSurvives(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c", "@foo", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, "@file", inv.Reason)
}

func TestClassifyUnknownExtension(t *testing.T) {
	inv := Classify([]string{"-c", "foo.weird", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, "unknown source extension", inv.Reason)
}

func TestClassifyForcedLanguage(t *testing.T) {
	inv := Classify([]string{"-c", "-x", "c++-cpp-output", "foo.i", "-o", "foo.o"}, ".", gccSpec())
	require.Equal(t, Ok, inv.Outcome)
	assert.Equal(t, "c++-cpp-output", inv.Extension)
	assert.Equal(t, []string{"-x", "c++-cpp-output"}, inv.PreprocessorArgs)
}

func TestClassifyNoOutputFile(t *testing.T) {
	inv := Classify([]string{"-c", "foo.c"}, ".", gccSpec())
	assert.Equal(t, "no output file", inv.Reason)
}

func TestClassifyStdinInput(t *testing.T) {
	inv := Classify([]string{"-c", "-", "-o", "foo.o"}, ".", gccSpec())
	assert.Equal(t, CannotCache, inv.Outcome)
}

func TestExpandResponseFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "args.rsp"), []byte("-c foo.c -o foo.o"), 0o644))

	expanded, unexpanded := ExpandResponseFiles([]string{"gcc", "@args.rsp"}, dir)
	assert.False(t, unexpanded)
	assert.Equal(t, []string{"gcc", "-c", "foo.c", "-o", "foo.o"}, expanded)
}

func TestExpandResponseFilesMissing(t *testing.T) {
	expanded, unexpanded := ExpandResponseFiles([]string{"gcc", "@nope.rsp"}, t.TempDir())
	assert.True(t, unexpanded)
	assert.Equal(t, []string{"gcc", "@nope.rsp"}, expanded)
}

func TestExpandResponseFilesWithQuotes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "args.rsp"), []byte(`-DFOO="bar"`), 0o644))

	expanded, unexpanded := ExpandResponseFiles([]string{"@args.rsp"}, dir)
	assert.True(t, unexpanded)
	assert.Equal(t, []string{"@args.rsp"}, expanded)
}

func TestExpandResponseFilesRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inner.rsp"), []byte("-c foo.c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outer.rsp"), []byte("@inner.rsp -o foo.o"), 0o644))

	expanded, unexpanded := ExpandResponseFiles([]string{"@outer.rsp"}, dir)
	assert.False(t, unexpanded)
	assert.Equal(t, []string{"-c", "foo.c", "-o", "foo.o"}, expanded)
}
