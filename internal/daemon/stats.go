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

package daemon

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccdtools/ccd/internal/wire"
)

// Stats is the daemon's in-memory counter set, per spec's Server
// Statistics: a mapping from counter name to integer, reset wholesale
// by ZeroStats and read through Snapshot by GetStats.
type Stats struct {
	compileRequests          int64
	requestsExecuted         int64
	cacheHits                int64
	cacheMisses              int64
	cacheErrors              int64
	forcedRecaches           int64
	cacheWriteDurationMillis int64

	reasonsMu sync.Mutex
	reasons   map[string]int64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{reasons: make(map[string]int64)}
}

func (s *Stats) IncCompileRequests()  { atomic.AddInt64(&s.compileRequests, 1) }
func (s *Stats) IncRequestsExecuted() { atomic.AddInt64(&s.requestsExecuted, 1) }
func (s *Stats) IncCacheHits()        { atomic.AddInt64(&s.cacheHits, 1) }
func (s *Stats) IncCacheMisses()      { atomic.AddInt64(&s.cacheMisses, 1) }
func (s *Stats) IncCacheErrors()      { atomic.AddInt64(&s.cacheErrors, 1) }
func (s *Stats) IncForcedRecaches()   { atomic.AddInt64(&s.forcedRecaches, 1) }

// AddCacheWriteDuration folds d into the moving sum spec calls for.
func (s *Stats) AddCacheWriteDuration(d time.Duration) {
	atomic.AddInt64(&s.cacheWriteDurationMillis, d.Milliseconds())
}

// IncNonCacheableReason bumps the histogram bucket for reason.
func (s *Stats) IncNonCacheableReason(reason string) {
	if reason == "" {
		return
	}
	s.reasonsMu.Lock()
	s.reasons[reason]++
	s.reasonsMu.Unlock()
}

// Snapshot reads every counter. Each counter is loaded atomically on
// its own, so a snapshot taken while requests are in flight can combine
// values from before and after a concurrent update.
func (s *Stats) Snapshot() wire.StatsSnapshot {
	s.reasonsMu.Lock()
	reasons := make(map[string]int64, len(s.reasons))
	for k, v := range s.reasons {
		reasons[k] = v
	}
	s.reasonsMu.Unlock()

	return wire.StatsSnapshot{
		CompileRequests:          atomic.LoadInt64(&s.compileRequests),
		RequestsExecuted:         atomic.LoadInt64(&s.requestsExecuted),
		CacheHits:                atomic.LoadInt64(&s.cacheHits),
		CacheMisses:              atomic.LoadInt64(&s.cacheMisses),
		CacheErrors:              atomic.LoadInt64(&s.cacheErrors),
		ForcedRecaches:           atomic.LoadInt64(&s.forcedRecaches),
		NonCacheableReasons:      reasons,
		CacheWriteDurationMillis: atomic.LoadInt64(&s.cacheWriteDurationMillis),
	}
}

// Reset zeros every counter, per ZeroStats.
func (s *Stats) Reset() {
	atomic.StoreInt64(&s.compileRequests, 0)
	atomic.StoreInt64(&s.requestsExecuted, 0)
	atomic.StoreInt64(&s.cacheHits, 0)
	atomic.StoreInt64(&s.cacheMisses, 0)
	atomic.StoreInt64(&s.cacheErrors, 0)
	atomic.StoreInt64(&s.forcedRecaches, 0)
	atomic.StoreInt64(&s.cacheWriteDurationMillis, 0)
	s.reasonsMu.Lock()
	s.reasons = make(map[string]int64)
	s.reasonsMu.Unlock()
}
