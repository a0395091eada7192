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
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/journalcache/mmapcache/internal/busfault"
)

// SIGBUSWatcher observes SIGBUS deliveries for logging purposes only.
//
// Go's os/signal package does not surface siginfo_t, so a watcher built on
// signal.Notify can never learn the faulting address — it can only learn
// that *some* SIGBUS happened somewhere in the process. That is the
// "managed-memory environment" constraint spec §9 calls out: the real,
// address-attributed enqueue this cache relies on for correctness comes
// from EnablePanicOnFault plus Cache.ReadAt's recover handler below, which
// knows exactly which window was being touched when the runtime turned the
// fault into a panic. SIGBUSWatcher exists purely so an operator sees a log
// line immediately, without waiting for the next GotSIGBUS, CloseFile or
// ReadAt call to notice.
type SIGBUSWatcher struct {
	log  *logrus.Entry
	stop chan struct{}
	once sync.Once
}

// NewSIGBUSWatcher returns a watcher that logs at warn level via log (or
// the package default logger if log is nil).
func NewSIGBUSWatcher(log *logrus.Entry) *SIGBUSWatcher {
	if log == nil {
		log = defaultLogger()
	}
	return &SIGBUSWatcher{log: log, stop: make(chan struct{})}
}

// Start installs the signal.Notify hook and begins logging. It is safe to
// call at most once per watcher.
func (w *SIGBUSWatcher) Start() {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGBUS)
	go func() {
		for {
			select {
			case <-ch:
				w.log.Warn("received SIGBUS; faulting address unknown to os/signal, " +
					"waiting for the next GotSIGBUS/CloseFile/ReadAt call to attribute it")
			case <-w.stop:
				signal.Stop(ch)
				return
			}
		}
	}()
}

// Stop tears down the watcher. Safe to call multiple times.
func (w *SIGBUSWatcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// EnablePanicOnFault turns a SIGBUS taken while touching a Go-managed
// mapping into a recoverable panic instead of a process crash
// (runtime/debug.SetPanicOnFault). Call it once during process startup,
// before any Cache.ReadAt call. It must not be relied on to protect raw
// slices obtained from Cache.Get and read directly by the caller outside
// of ReadAt — the Go runtime only converts faults taken by Go-compiled
// code accessing the faulting address into a panic, and only the calling
// goroutine's own access is covered.
func EnablePanicOnFault() {
	debug.SetPanicOnFault(true)
}

// ReadAt copies size bytes at offset from h into dst via Cache.Get,
// recovering from a SIGBUS-induced runtime panic and turning it into the
// same IO_ERROR spec §4.5 promises future reads will see. On recovery, the
// address of the first byte being read (which lies inside the faulting
// window) is pushed onto the shared bus-fault queue and drained immediately, so the attribution and invalidation
// protocol of spec §4.5 runs synchronously within this call instead of
// waiting for a future GotSIGBUS/Close.
//
// EnablePanicOnFault must have been called for this recovery path to work;
// without it, a fault here crashes the process like any other SIGBUS,
// which is still memory-safe but forgoes the graceful IO_ERROR.
func (c *Cache) ReadAt(h *FileHandle, contextID int, keepAlways bool, offset, size int64, fileSize *int64, dst []byte) (n int, err error) {
	b, err := c.Get(h, contextID, keepAlways, offset, size, fileSize)
	if err != nil {
		return 0, err
	}

	defer func() {
		if r := recover(); r != nil {
			addr := uintptr(unsafe.Pointer(&b[0]))
			busfault.Global.Push(addr)
			c.drainBusFaults()
			n = 0
			err = wrapErrno("readat", h.fd, ErrnoIO)
		}
	}()

	n = copy(dst, b)
	return n, nil
}
