// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mmapcache

import "fmt"

// Stats holds the three counters spec §3/§4.1 require: context hits,
// window-list hits, and misses. Statistics are never rolled back on error
// (spec §7).
type Stats struct {
	ContextHits    uint64
	WindowListHits uint64
	Misses         uint64
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"context_hits=%d window_list_hits=%d misses=%d",
		s.ContextHits, s.WindowListHits, s.Misses)
}

// StatsLog writes the cache's current statistics to its logger at info
// level (spec §6, "cache_stats_log").
func (c *Cache) StatsLog() {
	c.log.WithFields(map[string]interface{}{
		"context_hits":     c.stats.ContextHits,
		"window_list_hits": c.stats.WindowListHits,
		"misses":           c.stats.Misses,
		"live_windows":     c.liveWindows,
	}).Info("mmapcache stats")
}
