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
	"bytes"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// windowDumpFields is the subset of window state DebugDump reports per
// window. The test fills it from the window's internal state and diffs it
// structurally against the expected values, then checks that the dump's
// text reports those same values.
type windowDumpFields struct {
	Offset, Size int64
	Pinned       bool
	Contexts     int
}

func TestDebugDumpReflectsWindowState(t *testing.T) {
	c := New(WithWindowSize(int64(mmapio.PageSize())))
	defer c.Close()

	f := newTempFile(t, 1<<20)
	h := c.AddFD(int(f.Fd()), mmapio.ProtRead)
	if _, err := c.Get(h, 0, true /* keepAlways */, 0, 10, nil); err != nil {
		t.Fatal(err)
	}

	nctx := 0
	for ctx := h.windows.contexts; ctx != nil; ctx = ctx.next {
		nctx++
	}
	got := windowDumpFields{
		Offset:   h.windows.offset,
		Size:     h.windows.size,
		Pinned:   h.windows.keepAlways,
		Contexts: nctx,
	}
	want := windowDumpFields{
		Offset:   0,
		Size:     int64(mmapio.PageSize()),
		Pinned:   true,
		Contexts: 1,
	}
	if diff := pretty.Compare(got, want); diff != "" {
		t.Fatalf("window state after Get does not match expectation (-got +want):\n%s", diff)
	}

	var buf bytes.Buffer
	c.DebugDump(&buf)
	dump := buf.String()

	for _, want := range []string{
		"live_windows=1",
		"files=1",
		"poisoned=false",
		"pinned=true",
		"contexts=1",
		"unused_list_length=0",
	} {
		if !strings.Contains(dump, want) {
			t.Errorf("DebugDump output missing %q:\n%s", want, dump)
		}
	}
}

func TestDebugDumpCountsUnusedWindows(t *testing.T) {
	c := New(WithWindowSize(int64(mmapio.PageSize())))
	defer c.Close()

	f := newTempFile(t, 1<<20)
	h := c.AddFD(int(f.Fd()), mmapio.ProtRead)
	if _, err := c.Get(h, 0, false, 0, 10, nil); err != nil {
		t.Fatal(err)
	}
	c.getOrCreateContext(0).detach()
	c.maybeLinkUnused(h.windows)

	var buf bytes.Buffer
	c.DebugDump(&buf)
	if !strings.Contains(buf.String(), "unused_list_length=1") {
		t.Errorf("expected DebugDump to report one unused window:\n%s", buf.String())
	}
}
