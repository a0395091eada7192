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

// Package mmapio wraps the handful of host primitives the cache core
// depends on (spec §6: "Host primitives consumed"): page size, map, unmap,
// and remap-to-anonymous for bus-fault recovery. Everything else in the
// cache operates purely on the byte slices this package hands back.
package mmapio

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Prot describes the protection a window is mapped with.
type Prot int

const (
	ProtRead Prot = iota
	ProtReadWrite
)

func (p Prot) unixProt() int {
	switch p {
	case ProtReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_READ
	}
}

// PageSize returns the host's page size, a positive power of two.
func PageSize() int {
	return os.Getpagesize()
}

// PageAlign rounds n up to the next multiple of the page size.
func PageAlign(n int64) int64 {
	p := int64(PageSize())
	return (n + p - 1) &^ (p - 1)
}

// PageFloor rounds n down to the previous multiple of the page size.
func PageFloor(n int64) int64 {
	p := int64(PageSize())
	return n &^ (p - 1)
}

// Map maps a MAP_SHARED region of fd at [offset, offset+size) with the
// given protection at a kernel-chosen address. size and offset must already
// be page-aligned.
func Map(fd int, offset int64, size int, prot Prot) ([]byte, error) {
	b, err := unix.Mmap(fd, offset, size, prot.unixProt(), unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap(fd=%d, off=%d, len=%d): %w", fd, offset, size, err)
	}
	return b, nil
}

// Unmap tears down a mapping previously returned by Map, including one
// that Invalidate has since remapped in place.
func Unmap(b []byte) error {
	if b == nil {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// Invalidate remaps the address range backing b in place to anonymous,
// zero-filled, private pages with the same protection and size (spec
// §4.5 step 2): MAP_FIXED | MAP_PRIVATE | MAP_ANONYMOUS. It deliberately
// reuses b's base address, so pointers already computed against the window
// stay valid and now read as zero instead of faulting.
//
// unix.Mmap has no way to request a fixed address, so this drops to the
// raw mmap(2) syscall directly, the same level the uffd/userfaultfd and
// Windows MapViewOfFile helpers in the wild operate at.
func Invalidate(b []byte, prot Prot) error {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(len(b)),
		uintptr(prot.unixProt()),
		uintptr(unix.MAP_FIXED|unix.MAP_PRIVATE|unix.MAP_ANONYMOUS),
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return fmt.Errorf("remap to anonymous at %#x: %w", addr, errno)
	}
	return nil
}

// IsENOMEM reports whether err is (or wraps) ENOMEM, the signal to evict an
// LRU window and retry the mapping per spec §4.4.2.
func IsENOMEM(err error) bool {
	return isErrno(err, syscall.ENOMEM)
}

func isErrno(err error, target syscall.Errno) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == target
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
