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
	"syscall"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// Get implements the read path (spec §4.4): it returns a slice aliasing
// the file's content at [offset, offset+size), mapping a new window,
// reusing an existing one, or bouncing off a context shortcut as cheaply
// as possible. fileSize, if non-nil, is a stat hint: a request whose offset
// is at or past it fails with ErrnoOutOfRange, and new windows are clamped
// so they do not map past EOF (spec §4.4.1 step 4).
//
// contextID must be in [0, MaxContexts). size must be > 0.
func (c *Cache) Get(h *FileHandle, contextID int, keepAlways bool, offset, size int64, fileSize *int64) ([]byte, error) {
	if contextID < 0 || contextID >= c.maxContexts {
		return nil, fmt.Errorf("mmapcache: context id %d out of range [0,%d)", contextID, c.maxContexts)
	}
	if size <= 0 {
		return nil, fmt.Errorf("mmapcache: size must be positive, got %d", size)
	}
	if fileSize != nil && offset >= *fileSize {
		return nil, wrapErrno("get", h.fd, ErrnoOutOfRange)
	}

	// (a) Context fast path.
	if ctx := c.contexts[contextID]; ctx != nil && ctx.window != nil {
		w := ctx.window
		if w.file == h && w.covers(offset, size) {
			if h.poisoned {
				return nil, wrapErrno("get", h.fd, ErrnoIO)
			}
			w.keepAlways = w.keepAlways || keepAlways
			w.lastTouched = c.clock.Now()
			c.stats.ContextHits++
			return w.ptrFor(offset, size), nil
		}

		// Wrong window or wrong file: detach and fall through.
		ctx.detach()
		c.maybeLinkUnused(w)
	}

	// (b) Window-list path.
	if h.poisoned {
		return nil, wrapErrno("get", h.fd, ErrnoIO)
	}
	for w := h.windows; w != nil; w = w.fileNext {
		if !w.covers(offset, size) {
			continue
		}

		ctx := c.getOrCreateContext(contextID)
		c.bindContext(ctx, w)
		w.keepAlways = w.keepAlways || keepAlways
		w.lastTouched = c.clock.Now()
		c.stats.WindowListHits++
		return w.ptrFor(offset, size), nil
	}

	// (c) Allocate path.
	return c.allocateAndGet(h, contextID, keepAlways, offset, size, fileSize)
}

// getOrCreateContext returns the context at slot id, lazily creating it on
// first use (spec §3, "Context... lazily created on first request with a
// given id").
func (c *Cache) getOrCreateContext(id int) *contextNode {
	if ctx := c.contexts[id]; ctx != nil {
		return ctx
	}
	ctx := &contextNode{cache: c, id: id}
	c.contexts[id] = ctx
	return ctx
}

// bindContext detaches ctx from any window it currently points at and
// attaches it to w, fixing up the unused list on both ends.
func (c *Cache) bindContext(ctx *contextNode, w *window) {
	if old := ctx.window; old != nil && old != w {
		old.detachContext(ctx)
		c.maybeLinkUnused(old)
	}
	if ctx.window != w {
		w.attachContext(ctx)
	}
	c.maybeLinkUnused(w)
}

// allocateAndGet implements the allocate path (spec §4.4(c) and §4.4.1):
// compute window geometry, create (possibly recycling) a window, map it
// with ENOMEM-evict-retry (§4.4.2), bind the context, and return a pointer
// into it.
func (c *Cache) allocateAndGet(h *FileHandle, contextID int, keepAlways bool, offset, size int64, fileSize *int64) ([]byte, error) {
	// Counted unconditionally, before geometry or mapping can fail, matching
	// mmap_cache_fd_get's n_missed++ ahead of add_mmap in the original.
	c.stats.Misses++

	woff, wsize, errno := c.computeGeometry(offset, size, fileSize)
	if errno != 0 {
		return nil, wrapErrno("get", h.fd, errno)
	}

	w := c.newWindow(h)

	var b []byte
	for {
		mapped, err := mmapio.Map(h.fd, woff, int(wsize), h.prot)
		if err == nil {
			b = mapped
			break
		}

		if mmapio.IsENOMEM(err) && c.unusedTail != nil {
			victim := c.unusedTail
			c.freeWindow(victim)
			continue
		}

		c.abandonWindow(w)
		if mmapio.IsENOMEM(err) {
			return nil, wrapErrno("get", h.fd, ErrnoOutOfMemory)
		}
		return nil, fmt.Errorf("mmapcache: get(fd=%d): %w", h.fd, err)
	}

	w.addr = b
	w.offset = woff
	w.size = wsize
	w.lastTouched = c.clock.Now()

	ctx := c.getOrCreateContext(contextID)
	c.bindContext(ctx, w)
	w.keepAlways = w.keepAlways || keepAlways
	c.maybeLinkUnused(w)

	if wsize > 0 && size*4 < wsize {
		c.log.WithFields(map[string]interface{}{
			"requested": size,
			"window":    wsize,
		}).Debug("small request expanded to full window")
	}

	return w.ptrFor(offset, size), nil
}

// computeGeometry implements spec §4.4.1: floor the offset to a page
// boundary, pad the size to a page multiple, symmetrically expand small
// requests up to the configured window size, and, when a file-size hint is
// supplied, reject an offset at or past it and clamp the window to it.
func (c *Cache) computeGeometry(offset, size int64, fileSize *int64) (woff, wsize int64, errno syscall.Errno) {
	woff = mmapio.PageFloor(offset)
	wsize = mmapio.PageAlign(size + (offset - woff))

	if wsize < c.windowSize {
		delta := mmapio.PageAlign((c.windowSize - wsize) / 2)
		if delta > woff {
			woff = 0
		} else {
			woff -= delta
		}
		wsize = c.windowSize
	}

	if fileSize != nil {
		if offset >= *fileSize || woff >= *fileSize {
			return 0, 0, ErrnoOutOfRange
		}
		if woff+wsize > *fileSize {
			wsize = mmapio.PageAlign(*fileSize - woff)
		}
	}

	return woff, wsize, 0
}
