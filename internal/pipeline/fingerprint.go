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

package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"

	"github.com/ccdtools/ccd/internal/adapter"
	"github.com/ccdtools/ccd/internal/classify"
	"github.com/ccdtools/ccd/internal/storage"
)

// computeFingerprint combines adapter identity, the compiler's resolved
// path and mtime, the ordered common-flag list, the source-language
// tag, and the full preprocessed byte stream into one SHA-256 digest,
// exactly as spec's Hashing step describes.
func computeFingerprint(kind adapter.Kind, exe string, inv classify.Invocation, preprocessed []byte) (storage.Fingerprint, error) {
	abs, err := filepath.Abs(exe)
	if err != nil {
		abs = exe
	}

	var mtime int64
	if info, err := os.Stat(abs); err == nil {
		mtime = info.ModTime().UnixNano()
	}

	var buf bytes.Buffer
	writeField(&buf, []byte(kind))
	writeField(&buf, []byte(abs))
	var mtimeBytes [8]byte
	binary.LittleEndian.PutUint64(mtimeBytes[:], uint64(mtime))
	writeField(&buf, mtimeBytes[:])
	for _, f := range inv.CommonArgs {
		writeField(&buf, []byte(f))
	}
	writeField(&buf, []byte(inv.Extension))
	writeField(&buf, preprocessed)

	return storage.Fingerprint(digest.FromBytes(buf.Bytes())), nil
}

// writeField length-prefixes b so concatenated fields can't collide
// across a boundary (e.g. common flags "-I" + "a" vs "-Ia").
func writeField(buf *bytes.Buffer, b []byte) {
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(len(b)))
	buf.Write(length[:])
	buf.Write(b)
}
