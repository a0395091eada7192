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

// contextNode is a named, stable cursor slot (spec §3, "Context"):
// Cache.contexts[i].id == i always holds, and its window field is a weak,
// nullable back-edge into whatever window it last hit.
type contextNode struct {
	cache *Cache
	id    int

	window *window // nil if detached

	// Linkage inside window.contexts; meaningless while window == nil.
	next, prev *contextNode
}

// detach removes c from its window's context list, if any, possibly making
// that window newly eligible for the unused (LRU) list. It returns the
// window c was detached from, or nil.
func (c *contextNode) detach() *window {
	w := c.window
	if w == nil {
		return nil
	}
	w.detachContext(c)
	return w
}
