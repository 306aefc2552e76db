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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	cases := map[string]Kind{
		"/usr/bin/gcc":        KindGCC,
		"/usr/bin/gcc-11":     KindGCC,
		"/usr/bin/g++":        KindGCC,
		"/usr/bin/clang":      KindClang,
		"/usr/bin/clang-15":   KindClang,
		"/usr/bin/clang++":    KindClang,
		"/usr/bin/cl.exe":    KindMSVC,
		"/usr/bin/clang-cl":  KindMSVC,
	}
	for exe, want := range cases {
		k, err := DetectKind(exe)
		require.NoError(t, err, exe)
		assert.Equal(t, want, k, exe)
	}
}

func TestDetectKindUnknown(t *testing.T) {
	_, err := DetectKind("/usr/bin/ld")
	assert.Error(t, err)
}
