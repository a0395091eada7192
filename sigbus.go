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
	"unsafe"

	"github.com/journalcache/mmapcache/internal/busfault"
	"github.com/journalcache/mmapcache/internal/mmapio"
)

// GotSIGBUS drains the process-wide bus-fault queue and reports whether h
// is (now, or already) poisoned (spec §4.5: "got_bus_fault(handle) returns
// the handle's poisoned flag").
func (c *Cache) GotSIGBUS(h *FileHandle) bool {
	c.drainBusFaults()
	return h.poisoned
}

// drainBusFaults implements the two-phase recovery protocol of spec §4.5.
// It is invoked lazily, from GotSIGBUS, before CloseFile, and from ReadAt
// after it recovers from a fault.
func (c *Cache) drainBusFaults() {
	for {
		addr, ok := busfault.Global.Pop()
		if !ok {
			break
		}
		c.attributeFault(addr)
	}

	for _, h := range c.files {
		if !h.poisoned {
			continue
		}
		c.invalidateFile(h)
	}
}

// attributeFault locates the window whose mapped range contains addr by
// scanning every file's window list and marks its FileHandle poisoned. An
// address that matches nothing owned by this cache is a bug that must not
// be silently swallowed (spec §4.5 step 1): the process is aborted.
func (c *Cache) attributeFault(addr uintptr) {
	for _, h := range c.files {
		for w := h.windows; w != nil; w = w.fileNext {
			if windowContains(w, addr) {
				if !h.poisoned {
					c.log.WithFields(map[string]interface{}{
						"fd":   h.fd,
						"addr": addr,
					}).Warn("file poisoned by bus fault")
				}
				h.poisoned = true
				return
			}
		}
	}

	abort("unattributable bus fault at %#x", addr)
}

func windowContains(w *window, addr uintptr) bool {
	if len(w.addr) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&w.addr[0]))
	return addr >= base && addr < base+uintptr(len(w.addr))
}

// invalidateFile walks every window of a poisoned file and remaps it to
// anonymous zero-filled pages in place, idempotently (spec §4.5 step 2):
// this guarantees no further access to the file can trigger another bus
// fault, regardless of reader pointer staleness.
func (c *Cache) invalidateFile(h *FileHandle) {
	for w := h.windows; w != nil; w = w.fileNext {
		if w.invalidated {
			continue
		}
		if err := mmapio.Invalidate(w.addr, w.prot()); err != nil {
			c.log.WithError(err).WithField("fd", h.fd).Warn("failed to invalidate poisoned window")
			continue
		}
		w.invalidated = true
	}
}
