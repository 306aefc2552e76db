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

// Package bundle packs a compile's output files into a single
// transportable blob and unpacks one back to disk, preserving each
// entry's name, bytes, and Unix mode bits.
package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	kflate "github.com/klauspost/compress/flate"
)

func init() {
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.DefaultCompression)
	})
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return kflate.NewReader(r)
	})
}

// Entry is one file inside a Bundle.
type Entry struct {
	Name string // the output-kind tag, e.g. "obj", "dwo"
	Data []byte
	Mode os.FileMode
}

// Bundle is an ordered set of artifact files, serialized as a single
// zip container with no solid-archive cross-entry sharing.
type Bundle struct {
	Entries []Entry
}

// Add appends an entry in insertion order.
func (b *Bundle) Add(name string, data []byte, mode os.FileMode) {
	b.Entries = append(b.Entries, Entry{Name: name, Data: data, Mode: mode})
}

// Pack serializes the bundle to its wire form.
func Pack(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range b.Entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		hdr.SetMode(e.Mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("bundle: create entry %q: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("bundle: write entry %q: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack deserializes a wire-form bundle back into entries in their
// original order.
func Unpack(raw []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("bundle: open: %w", err)
	}
	b := &Bundle{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("bundle: open entry %q: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("bundle: read entry %q: %w", f.Name, err)
		}
		b.Add(f.Name, data, f.Mode())
	}
	return b, nil
}

// WriteToDisk writes every entry to the path given in outputs for
// that entry's Name tag.
func WriteToDisk(b *Bundle, outputs map[string]string) error {
	for _, e := range b.Entries {
		path, ok := outputs[e.Name]
		if !ok {
			return fmt.Errorf("bundle: no output path for entry %q", e.Name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(path, e.Data, mode); err != nil {
			return fmt.Errorf("bundle: write %q: %w", path, err)
		}
	}
	return nil
}

// FromDisk reads the files named by outputs (tag -> path) into a new
// Bundle, preserving each file's mode bits.
func FromDisk(outputs map[string]string) (*Bundle, error) {
	b := &Bundle{}
	for _, tag := range orderedTags(outputs) {
		path := outputs[tag]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("bundle: read %q: %w", path, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		b.Add(tag, data, info.Mode())
	}
	return b, nil
}

// orderedTags returns "obj" first, then everything else sorted, so
// bundle packing order (and thus zip byte layout) is deterministic.
func orderedTags(outputs map[string]string) []string {
	var rest []string
	for tag := range outputs {
		if tag != "obj" {
			rest = append(rest, tag)
		}
	}
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && rest[j] < rest[j-1]; j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	tags := make([]string, 0, len(outputs))
	if _, ok := outputs["obj"]; ok {
		tags = append(tags, "obj")
	}
	return append(tags, rest...)
}
