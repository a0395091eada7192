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
	"syscall"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// FileHandle is the cache's bookkeeping around one registered file
// descriptor (spec §3, "FileHandle"). It is returned by Cache.AddFD and
// passed back into Cache.Get / Cache.CloseFile.
type FileHandle struct {
	cache *Cache

	fd   int
	prot mmapio.Prot

	// dev/ino are recorded purely for diagnostics (SPEC_FULL's "file
	// identity" addition) and never affect dedup, which stays keyed on fd
	// per spec §4.2.
	dev, ino uint64

	poisoned bool

	// windows is the head of the intrusive, most-recently-added-first
	// doubly-linked list of windows mapping regions of this file.
	windows *window
}

// Fd returns the registered file descriptor.
func (f *FileHandle) Fd() int { return f.fd }

// Poisoned reports whether a bus fault has already been attributed to this
// file. It does not drain the fault queue; call Cache.GotSIGBUS for that.
func (f *FileHandle) Poisoned() bool { return f.poisoned }

// linkWindow prepends w to f's window list, making it the new MRU entry
// (spec §4.3: "linear scans favor recent activity").
func (f *FileHandle) linkWindow(w *window) {
	w.file = f
	w.filePrev = nil
	w.fileNext = f.windows
	if f.windows != nil {
		f.windows.filePrev = w
	}
	f.windows = w
}

// unlinkWindow removes w from f's window list.
func (f *FileHandle) unlinkWindow(w *window) {
	if w.filePrev != nil {
		w.filePrev.fileNext = w.fileNext
	} else if f.windows == w {
		f.windows = w.fileNext
	}
	if w.fileNext != nil {
		w.fileNext.filePrev = w.filePrev
	}
	w.fileNext = nil
	w.filePrev = nil
}

// AddFD registers fd with the cache under the given protection, returning
// its FileHandle. Re-registering an already-known fd returns the existing
// handle unchanged; prot is ignored on that second call (spec §4.2,
// "idempotent registration is a Law", §8), though a mismatched prot is
// logged since silently keeping the first registration's protection is
// surprising enough to be worth a line.
func (c *Cache) AddFD(fd int, prot mmapio.Prot) *FileHandle {
	if h, ok := c.files[fd]; ok {
		if h.prot != prot {
			c.log.WithFields(map[string]interface{}{
				"fd": fd, "registered_prot": h.prot, "requested_prot": prot,
			}).Warn("AddFD called again with a different protection; keeping the original")
		}
		return h
	}

	h := &FileHandle{cache: c, fd: fd, prot: prot}

	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err == nil {
		h.dev, h.ino = uint64(stat.Dev), stat.Ino
	}

	c.files[fd] = h
	c.log.WithField("fd", fd).Debug("registered file")
	return h
}

// CloseFile dispatches any pending bus faults first (a queued fault address
// might belong to one of this handle's windows; unmapping first would
// leave it unattributable, forcing an abort — spec §4.2's rationale), then
// unmaps and frees all of this handle's windows, removes it from the
// registry, and frees it.
func (c *Cache) CloseFile(h *FileHandle) {
	c.drainBusFaults()

	for w := h.windows; w != nil; {
		next := w.fileNext
		c.freeWindow(w)
		w = next
	}

	delete(c.files, h.fd)
	c.log.WithField("fd", h.fd).Debug("closed file")
}
