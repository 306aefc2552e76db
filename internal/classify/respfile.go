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
	"strings"

	"github.com/golang/glog"
)

// ResponseFileSigil is the token prefix ("@file") that introduces a
// response file to be spliced into the argument list in place.
const ResponseFileSigil = "@"

// ExpandResponseFiles expands response-file references in tokens into
// their contents, recursively. It is an explicit stack of remaining
// tokens rather than a generator: each pop either yields a token
// directly or, if it names a readable quote-free response file, pushes
// that file's whitespace-split tokens back onto the stack and loops.
//
// A token whose file doesn't exist, can't be read, or whose contents
// contain a quote character is passed through literally; Unexpanded
// reports whether any such token survived, which the caller must treat
// as non-cacheable.
func ExpandResponseFiles(tokens []string, cwd string) (expanded []string, unexpanded bool) {
	// Stack holds remaining tokens in pop order: reverse of tokens so
	// the first token is popped first.
	stack := make([]string, len(tokens))
	for i, t := range tokens {
		stack[len(tokens)-1-i] = t
	}

	for len(stack) > 0 {
		arg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !strings.HasPrefix(arg, ResponseFileSigil) || arg == ResponseFileSigil {
			expanded = append(expanded, arg)
			continue
		}

		name := strings.TrimPrefix(arg, ResponseFileSigil)
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			glog.V(2).Infof("classify: response file %q unreadable: %v", path, err)
			expanded = append(expanded, arg)
			unexpanded = true
			continue
		}
		if strings.ContainsAny(string(contents), `"'`) {
			glog.V(2).Infof("classify: response file %q contains quotes, passing through", path)
			expanded = append(expanded, arg)
			unexpanded = true
			continue
		}

		fields := strings.Fields(string(contents))
		for i := len(fields) - 1; i >= 0; i-- {
			stack = append(stack, fields[i])
		}
	}

	return expanded, unexpanded
}
