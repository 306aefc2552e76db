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
	"fmt"
	"path/filepath"
	"strings"
)

// knownStems maps a lowercased, extension- and version-suffix-stripped
// executable basename to the family it belongs to. Version suffixes
// like "gcc-11" or "clang-15" are handled by stripping trailing
// "-<digits>" before the lookup.
var knownStems = map[string]Kind{
	"gcc": KindGCC, "cc": KindGCC, "g++": KindGCC, "c++": KindGCC,
	"gcc-ar": KindGCC,
	"clang": KindClang, "clang++": KindClang, "clang-cl": KindMSVC,
	"cl": KindMSVC,
}

// DetectKind guesses a compiler family from the invoked executable's
// basename, the same signal the daemon's wire.CompileRequest carries
// (the client sends a resolved exe path, not a family tag).
func DetectKind(exe string) (Kind, error) {
	base := filepath.Base(exe)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)
	base = stripVersionSuffix(base)

	if k, ok := knownStems[base]; ok {
		return k, nil
	}
	return "", fmt.Errorf("adapter: cannot determine compiler family for %q", exe)
}

// stripVersionSuffix removes one trailing "-<digits>" group, e.g.
// "gcc-11" -> "gcc", "clang-15" -> "clang".
func stripVersionSuffix(base string) string {
	i := strings.LastIndexByte(base, '-')
	if i < 0 || i == len(base)-1 {
		return base
	}
	suffix := base[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return base
		}
	}
	return base[:i]
}
