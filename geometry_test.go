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
	"testing"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

func TestComputeGeometryExpandsSmallRequestsToWindowSize(t *testing.T) {
	c := New(WithWindowSize(8 << 20))

	woff, wsize, errno := c.computeGeometry(0, 10, nil)

	if errno != 0 {
		t.Fatalf("unexpected errno: %v", errno)
	}
	if woff != 0 {
		t.Errorf("woff = %d, want 0", woff)
	}
	if wsize != 8<<20 {
		t.Errorf("wsize = %d, want %d", wsize, 8<<20)
	}
}

func TestComputeGeometrySymmetricallyExpandsAroundOffset(t *testing.T) {
	c := New(WithWindowSize(8 << 20))

	offset := int64(20_000_000)
	woff, wsize, errno := c.computeGeometry(offset, 10, nil)

	if errno != 0 {
		t.Fatalf("unexpected errno: %v", errno)
	}
	if wsize != 8<<20 {
		t.Errorf("wsize = %d, want %d", wsize, 8<<20)
	}
	if !(woff <= offset && offset+10 <= woff+wsize) {
		t.Errorf("window [%d, %d) does not cover requested offset %d", woff, woff+wsize, offset)
	}
}

func TestComputeGeometryClampsToFileSize(t *testing.T) {
	c := New(WithWindowSize(8 << 20))
	fileSize := int64(100)

	woff, wsize, errno := c.computeGeometry(50, 10, &fileSize)

	if errno != 0 {
		t.Fatalf("unexpected errno: %v", errno)
	}
	if woff != 0 {
		t.Errorf("woff = %d, want 0", woff)
	}
	wantSize := mmapio.PageAlign(fileSize)
	if wsize != wantSize {
		t.Errorf("wsize = %d, want %d", wsize, wantSize)
	}
}

func TestComputeGeometryRejectsOffsetPastFileSize(t *testing.T) {
	c := New(WithWindowSize(8 << 20))
	fileSize := int64(100)

	_, _, errno := c.computeGeometry(200, 10, &fileSize)

	if errno != syscall.EADDRNOTAVAIL {
		t.Fatalf("errno = %v, want EADDRNOTAVAIL", errno)
	}
}
