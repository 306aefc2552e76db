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

package disk

import "container/list"

// lruIndex tracks which fingerprints are cached and their on-disk size,
// ordered from most- to least-recently-used, so Put can evict the
// coldest entries first when the cache exceeds its byte budget. Callers
// serialize access with their own mutex (disk.Cache's), matching
// spec's "disk backend's index and byte counter share one sync.Mutex".
type lruIndex struct {
	list    *list.List
	entries map[string]*list.Element
	bytes   int64
}

type lruEntry struct {
	key  string
	size int64
}

func newLRUIndex() *lruIndex {
	return &lruIndex{
		list:    list.New(),
		entries: make(map[string]*list.Element),
	}
}

// touch records key as just-used, inserting it if new, and moving it
// to the front if already present. It does not evict.
func (idx *lruIndex) touch(key string, size int64) {
	if el, ok := idx.entries[key]; ok {
		idx.list.MoveToFront(el)
		idx.bytes += size - el.Value.(*lruEntry).size
		el.Value.(*lruEntry).size = size
		return
	}
	el := idx.list.PushFront(&lruEntry{key: key, size: size})
	idx.entries[key] = el
	idx.bytes += size
}

// has reports whether key is tracked, moving it to the front as a use.
func (idx *lruIndex) has(key string) bool {
	el, ok := idx.entries[key]
	if !ok {
		return false
	}
	idx.list.MoveToFront(el)
	return true
}

// evictUntil removes least-recently-used entries, calling remove for
// each one, until the tracked total is at or under max.
func (idx *lruIndex) evictUntil(max int64, remove func(key string)) {
	for idx.bytes > max {
		back := idx.list.Back()
		if back == nil {
			return
		}
		e := back.Value.(*lruEntry)
		idx.list.Remove(back)
		delete(idx.entries, e.key)
		idx.bytes -= e.size
		remove(e.key)
	}
}

func (idx *lruIndex) size() int64 { return idx.bytes }
