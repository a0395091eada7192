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
	"io"
)

// DebugDump writes a human-readable snapshot of every registered file and
// its windows to w, the Go rendering of the original mmap-cache.c's debug
// dump of registered fds and window counts.
func (c *Cache) DebugDump(w io.Writer) {
	fmt.Fprintf(w, "cache %s: %s, live_windows=%d, files=%d\n",
		c.id, c.stats, c.liveWindows, len(c.files))

	for fd, h := range c.files {
		n := 0
		for win := h.windows; win != nil; win = win.fileNext {
			n++
		}
		fmt.Fprintf(w, "  fd=%d poisoned=%v windows=%d\n", fd, h.poisoned, n)

		for win := h.windows; win != nil; win = win.fileNext {
			nctx := 0
			for c := win.contexts; c != nil; c = c.next {
				nctx++
			}
			fmt.Fprintf(w, "    offset=%d size=%d pinned=%v invalidated=%v contexts=%d generation=%d touched=%s\n",
				win.offset, win.size, win.keepAlways, win.invalidated, nctx, win.generation,
				win.lastTouched.Format("15:04:05.000"))
		}
	}

	n := 0
	for win := c.unusedHead; win != nil; win = win.lruNext {
		n++
	}
	fmt.Fprintf(w, "  unused_list_length=%d\n", n)
}
