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

import (
	"time"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// window is one contiguous mapping into exactly one file (spec §3,
// "Window"). It is reachable from exactly one FileHandle's window list and,
// optionally, from the unused (LRU) list and from zero or more contexts.
type window struct {
	cache *Cache
	file  *FileHandle

	addr   []byte // nil only for a freshly allocated, not-yet-mapped window
	offset int64  // page-aligned
	size   int64  // page-aligned multiple

	invalidated bool // remapped to anonymous after a bus fault
	keepAlways  bool // pinned; write-once-true (spec §4.4.3)
	inUnused    bool // currently linked into cache.unusedHead/Tail

	// generation is bumped every time this *window struct is recycled in
	// place. It has no effect on cache behavior; it exists so tests can
	// assert that a pointer captured before a recycle is never mistaken
	// for one captured after (spec §9's note on arena+index generation
	// counters, applied here as a debug-only tripwire).
	generation uint64

	lastTouched time.Time

	// Linkage in file.windows (intrusive doubly-linked list, MRU-first).
	fileNext, filePrev *window

	// Linkage in cache.unusedHead/unusedTail (intrusive doubly-linked
	// list; eviction always targets the tail).
	lruNext, lruPrev *window

	// Head of the intrusive list of contexts currently attached to this
	// window. Contexts own their own next/prev pointers (contextNode).
	contexts *contextNode
}

// covers reports whether the window's mapped range wholly contains
// [offset, offset+size) (spec §4.3).
func (w *window) covers(offset, size int64) bool {
	return offset >= w.offset && offset+size <= w.offset+w.size
}

// ptrFor returns the sub-slice of w.addr corresponding to [offset,
// offset+size), assuming covers(offset, size) already holds.
func (w *window) ptrFor(offset, size int64) []byte {
	start := offset - w.offset
	return w.addr[start : start+size]
}

// detachAllContexts nulls every attached context's window back-edge, the
// way window_free must before it unmaps and frees itself (spec §4.3): a
// Window dying must never leave a stale Context.window pointer behind.
func (w *window) detachAllContexts() {
	for c := w.contexts; c != nil; {
		next := c.next
		c.window = nil
		c.next = nil
		c.prev = nil
		c = next
	}
	w.contexts = nil
}

// attachContext links c into w's context list and points c at w. c must
// not already be attached to a window.
func (w *window) attachContext(c *contextNode) {
	c.window = w
	c.prev = nil
	c.next = w.contexts
	if w.contexts != nil {
		w.contexts.prev = c
	}
	w.contexts = c
}

// detachContext unlinks c from whatever window list it is the head/middle/
// tail of and clears c.window. It does not touch c.id.
func (w *window) detachContext(c *contextNode) {
	if c.prev != nil {
		c.prev.next = c.next
	} else if w.contexts == c {
		w.contexts = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	c.next = nil
	c.prev = nil
	c.window = nil
}

// eligibleForUnused reports whether w should be (or remain) on the LRU
// list: no attached contexts, and not pinned (spec §3 invariant).
func (w *window) eligibleForUnused() bool {
	return w.contexts == nil && !w.keepAlways
}

// prot returns the protection the window was mapped under, taken from its
// owning file.
func (w *window) prot() mmapio.Prot {
	return w.file.prot
}
