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
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// Cache is the top-level container described by spec §3/§4.1: it owns the
// fd registry, the context slots, and the LRU list of unused windows, and
// tracks statistics and a reference count.
//
// A Cache is not internally synchronized (spec §5): it is owned by one
// goroutine at a time. Callers that need concurrent access must serialize
// it themselves, the same "single-threaded cooperative" contract the
// teacher's Connection type enforces with its own mutex — except here, per
// spec §9 ("do not add internal locking"), there is deliberately no mutex
// at all.
type Cache struct {
	id uuid.UUID

	refcount int
	closed   bool
	closeMu  sync.Once

	liveWindows int
	stats       Stats

	windowSize  int64
	windowsMin  int
	maxContexts int

	files    map[int]*FileHandle
	contexts []*contextNode // index i always has id == i once allocated

	unusedHead, unusedTail *window

	clock timeutil.Clock
	log   *logrus.Entry
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithLogger overrides the default (warn-level, stderr) logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Cache) { c.log = l }
}

// WithClock overrides the clock used for diagnostics timestamps (DebugDump,
// log fields). Tests inject a fake clock the way the teacher's samples
// inject a fake timeutil.Clock.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithWindowSize overrides DefaultWindowSize. Passing one page here is the
// "debug build" stress mode spec §9 describes: it maximizes mmap churn and
// flushes out use-after-unmap bugs.
func WithWindowSize(size int64) Option {
	return func(c *Cache) { c.windowSize = size }
}

// WithWindowsMin overrides WindowsMin.
func WithWindowsMin(n int) Option {
	return func(c *Cache) { c.windowsMin = n }
}

// WithMaxContexts overrides MaxContexts.
func WithMaxContexts(n int) Option {
	return func(c *Cache) { c.maxContexts = n }
}

// New returns a new, empty Cache with refcount 1 and zeroed statistics
// (spec §4.1, "create()").
func New(opts ...Option) *Cache {
	c := &Cache{
		id:          uuid.New(),
		refcount:    1,
		windowSize:  DefaultWindowSize,
		windowsMin:  WindowsMin,
		maxContexts: MaxContexts,
		files:       make(map[int]*FileHandle),
		clock:       timeutil.RealClock(),
		log:         defaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.contexts = make([]*contextNode, c.maxContexts)
	return c
}

// ID returns a per-instance identifier used only for log correlation when
// multiple caches share a process (spec §5).
func (c *Cache) ID() uuid.UUID { return c.id }

// Ref increments the reference count.
func (c *Cache) Ref() {
	c.refcount++
}

// Unref decrements the reference count. When it reaches zero, every
// Context, then every FileHandle (cascading into its windows), then any
// remaining LRU windows are torn down, in that order, and no mapping from
// this cache remains in the address space afterward (spec §4.1).
func (c *Cache) Unref() {
	c.refcount--
	if c.refcount > 0 {
		return
	}
	c.teardown()
}

// Close is the idiomatic-Go spelling of "drop the last reference": it is
// safe to call multiple times.
func (c *Cache) Close() {
	c.closeMu.Do(func() {
		if c.refcount > 0 {
			c.teardown()
		}
	})
}

func (c *Cache) teardown() {
	if c.closed {
		return
	}
	c.closed = true

	for i, ctx := range c.contexts {
		if ctx == nil {
			continue
		}
		ctx.detach()
		c.contexts[i] = nil
	}

	for _, h := range c.files {
		for w := h.windows; w != nil; {
			next := w.fileNext
			c.freeWindow(w)
			w = next
		}
		delete(c.files, h.fd)
	}

	for w := c.unusedHead; w != nil; {
		next := w.lruNext
		c.freeWindow(w)
		w = next
	}

	c.log.WithField("cache", c.id).Debug("cache torn down")
}

// Stats returns the cache's hit/miss counters (spec §4.1, "stats()").
func (c *Cache) Stats() Stats { return c.stats }

// checkInvariants re-validates the structural invariants spec §3 lists. It
// is not called automatically on the hot path (the core is single-
// threaded and every operation already maintains them incrementally); it
// exists for tests and for an operator to call after catching a bug,
// mirroring the teacher's checkInvariants()+panic idiom in
// samples/memfs without pulling in an InvariantMutex, which would
// reintroduce the locking spec §9 explicitly forbids.
func (c *Cache) checkInvariants() {
	liveCount := 0
	for _, h := range c.files {
		for w := h.windows; w != nil; w = w.fileNext {
			liveCount++
			if w.file != h {
				panic(fmt.Sprintf("window %p has file %p, want %p", w, w.file, h))
			}
			wantUnused := w.eligibleForUnused()
			if wantUnused != w.inUnused {
				panic(fmt.Sprintf("window %p: inUnused=%v, want %v", w, w.inUnused, wantUnused))
			}
		}
	}
	if liveCount != c.liveWindows {
		panic(fmt.Sprintf("liveWindows=%d, counted %d", c.liveWindows, liveCount))
	}

	if (c.unusedTail == nil) != (c.unusedHead == nil) {
		panic("unusedHead/unusedTail nil-ness mismatch")
	}
	var lastSeen *window
	for w := c.unusedHead; w != nil; w = w.lruNext {
		if w.contexts != nil || w.keepAlways {
			panic(fmt.Sprintf("window %p on unused list but not eligible", w))
		}
		lastSeen = w
	}
	if lastSeen != c.unusedTail {
		panic("unusedTail is not the list's last node")
	}

	for i, ctx := range c.contexts {
		if ctx != nil && ctx.id != i {
			panic(fmt.Sprintf("context at slot %d has id %d", i, ctx.id))
		}
	}
}

////////////////////////////////////////////////////////////////////////
// LRU list management
////////////////////////////////////////////////////////////////////////

// linkUnused prepends w to the head of the unused list, the insertion point
// for a window that has just become eligible (spec §5: "strictly
// insertion-ordered-by-becoming-unused"). The tail is therefore always the
// window that has sat idle the longest, which is what recycleLRUTail and
// the ENOMEM-evict-retry loop in allocateAndGet both assume.
func (c *Cache) linkUnused(w *window) {
	if w.inUnused {
		return
	}
	w.inUnused = true
	w.lruNext = c.unusedHead
	w.lruPrev = nil
	if c.unusedHead != nil {
		c.unusedHead.lruPrev = w
	} else {
		c.unusedTail = w
	}
	c.unusedHead = w
}

// unlinkUnused removes w from the unused list, wherever in it w sits,
// fixing up the tail pointer if w was the tail.
func (c *Cache) unlinkUnused(w *window) {
	if !w.inUnused {
		return
	}
	w.inUnused = false

	if w.lruPrev != nil {
		w.lruPrev.lruNext = w.lruNext
	} else if c.unusedHead == w {
		c.unusedHead = w.lruNext
	}
	if w.lruNext != nil {
		w.lruNext.lruPrev = w.lruPrev
	} else if c.unusedTail == w {
		c.unusedTail = w.lruPrev
	}
	w.lruNext = nil
	w.lruPrev = nil
}

// maybeLinkUnused links w into the unused list iff it is currently
// eligible and not already linked; it unlinks w if it is linked but no
// longer eligible. Called after any operation that changes w's context
// count or pin flag.
func (c *Cache) maybeLinkUnused(w *window) {
	if w.eligibleForUnused() {
		c.linkUnused(w)
	} else {
		c.unlinkUnused(w)
	}
}

////////////////////////////////////////////////////////////////////////
// Window lifecycle
////////////////////////////////////////////////////////////////////////

// newWindow implements window_add (spec §4.3): if the LRU list is
// non-empty and the live count exceeds the soft floor, recycle its tail;
// otherwise allocate fresh. The returned window is already linked at the
// head of f's window list. It is not yet mapped; the caller fills in addr/
// offset/size itself or handles a map failure via c.abandonWindow.
func (c *Cache) newWindow(f *FileHandle) *window {
	if c.unusedTail != nil && c.liveWindows > c.windowsMin {
		w := c.recycleLRUTail()
		f.linkWindow(w)
		return w
	}

	w := &window{cache: c}
	c.liveWindows++
	f.linkWindow(w)
	return w
}

// recycleLRUTail unlinks the tail of the unused list, unmaps its mapping,
// detaches it from any dangling contexts (there should be none — it is on
// the unused list precisely because it has none — but spec §4.3 asks for
// this defensively), unlinks it from its old file's window list, and
// reinitializes it in place: destruction-in-place followed by
// reconstruction, never leaving stale context pointers and never
// double-unmapping.
func (c *Cache) recycleLRUTail() *window {
	w := c.unusedTail
	c.unlinkUnused(w)

	if err := mmapio.Unmap(w.addr); err != nil {
		c.log.WithError(err).Warn("unmap during recycle")
	}
	w.detachAllContexts()

	oldFile := w.file
	if oldFile != nil {
		oldFile.unlinkWindow(w)
	}

	w.addr = nil
	w.offset = 0
	w.size = 0
	w.invalidated = false
	w.keepAlways = false
	w.generation++

	c.log.WithFields(logrus.Fields{"generation": w.generation}).Debug("recycled window")
	return w
}

// freeWindow implements window_free (spec §4.3): unmaps, unlinks from its
// file's window list, unlinks from the unused list if present, nulls every
// attached context's window pointer, decrements the live count, and frees
// the record (in Go, simply drops the last reference to it).
func (c *Cache) freeWindow(w *window) {
	if err := mmapio.Unmap(w.addr); err != nil {
		c.log.WithError(err).Warn("unmap during free")
	}
	w.addr = nil

	if w.file != nil {
		w.file.unlinkWindow(w)
	}
	c.unlinkUnused(w)
	w.detachAllContexts()

	c.liveWindows--
}

// abandonWindow undoes newWindow for a window that never finished mapping
// (the allocate path failed with something other than a recoverable
// ENOMEM-then-evict retry): unlink it and release the slot it held.
func (c *Cache) abandonWindow(w *window) {
	c.freeWindow(w)
}
