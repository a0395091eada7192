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
	"testing"

	"github.com/journalcache/mmapcache/internal/mmapio"
)

// TestPruneIdleContextsDetachesOnlySingleUseAttachments: a window shared by
// two context ids is left alone (neither context is its only attachment),
// while a context that is the sole attachment on its window is detached and
// that window becomes unused-list eligible.
func TestPruneIdleContextsDetachesOnlySingleUseAttachments(t *testing.T) {
	c := New(WithWindowSize(int64(mmapio.PageSize())))
	defer c.Close()

	f1 := newTempFile(t, 1<<20)
	f2 := newTempFile(t, 1<<20)
	h1 := c.AddFD(int(f1.Fd()), mmapio.ProtRead)
	h2 := c.AddFD(int(f2.Fd()), mmapio.ProtRead)

	if _, err := c.Get(h1, 0, false, 0, 10, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(h1, 1, false, 0, 10, nil); err != nil {
		t.Fatal(err)
	}
	w1 := h1.windows

	if _, err := c.Get(h2, 2, false, 0, 10, nil); err != nil {
		t.Fatal(err)
	}
	w2 := h2.windows

	pruned := c.PruneIdleContexts()

	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if w1.inUnused {
		t.Error("window with two attached contexts should not have been made unused-list eligible")
	}
	if !w2.inUnused {
		t.Error("window whose only context was pruned should now be unused-list eligible")
	}
	if c.contexts[2].window != nil {
		t.Error("pruned context should have been detached from its window")
	}

	c.checkInvariants()
}

// TestPruneIdleContextsSkipsPinnedWindows: a window pinned via keepAlways is
// never pruned even when its sole context would otherwise qualify.
func TestPruneIdleContextsSkipsPinnedWindows(t *testing.T) {
	c := New(WithWindowSize(int64(mmapio.PageSize())))
	defer c.Close()

	f := newTempFile(t, 1<<20)
	h := c.AddFD(int(f.Fd()), mmapio.ProtRead)

	if _, err := c.Get(h, 0, true /* keepAlways */, 0, 10, nil); err != nil {
		t.Fatal(err)
	}

	pruned := c.PruneIdleContexts()

	if pruned != 0 {
		t.Errorf("pruned = %d, want 0", pruned)
	}
	if c.contexts[0].window == nil {
		t.Error("pinned window's context should not have been detached")
	}

	c.checkInvariants()
}
