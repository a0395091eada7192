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

// PruneIdleContexts detaches every context that is the only attachment of
// an unpinned window, so that window becomes eligible to sit on the unused
// list, and returns how many it detached. This mirrors the original mmap-cache.c's habit of
// compacting context shortcuts under window-count pressure so a window
// pinned only by a stale context can reach the LRU list sooner.
//
// It is not called automatically: the core has no background goroutine
// (spec §5, single-threaded cooperative model), so callers that see many
// contexts thrash across many files should invoke this explicitly, e.g.
// from a periodic maintenance tick in the host application.
func (c *Cache) PruneIdleContexts() (pruned int) {
	for _, ctx := range c.contexts {
		if ctx == nil || ctx.window == nil {
			continue
		}
		w := ctx.window
		if w.keepAlways {
			continue
		}
		if w.contexts == ctx && ctx.next == nil && ctx.prev == nil {
			ctx.detach()
			c.maybeLinkUnused(w)
			pruned++
		}
	}
	return pruned
}
