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

package busfault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPopOnEmptyQueueReportsNotOK(t *testing.T) {
	q := New(4)

	_, ok := q.Pop()
	require.False(t, ok)
}

func TestPushThenPopIsFIFO(t *testing.T) {
	q := New(4)

	require.True(t, q.Push(0x1000))
	require.True(t, q.Push(0x2000))

	addr, ok := q.Pop()
	require.True(t, ok)
	require.EqualValues(t, 0x1000, addr)

	addr, ok = q.Pop()
	require.True(t, ok)
	require.EqualValues(t, 0x2000, addr)

	_, ok = q.Pop()
	require.False(t, ok)
}

func TestPushReportsFalseWhenFull(t *testing.T) {
	q := New(2)

	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3))
}

// TestConcurrentPushAndPopNeverObservesATornSlot overlaps producers and a
// drainer in time, unlike TestConcurrentPushersNeverLoseOrCorruptAnAddress
// which only drains after every pusher has already finished. A drainer
// racing a still-in-flight Push must never observe a slot before its value
// has been published.
func TestConcurrentPushAndPopNeverObservesATornSlot(t *testing.T) {
	q := New(64)
	const n = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for addr := uintptr(1); addr <= n; addr++ {
			for !q.Push(addr) {
				// Full; the drainer below is racing to keep up.
			}
		}
	}()

	seen := make(map[uintptr]bool, n)
	drained := 0
	for drained < n {
		addr, ok := q.Pop()
		if !ok {
			continue
		}
		require.False(t, seen[addr], "address popped twice: %#x", addr)
		require.True(t, addr >= 1 && addr <= n, "observed out-of-range address %#x", addr)
		seen[addr] = true
		drained++
	}

	wg.Wait()
	require.Len(t, seen, n)
}

func TestConcurrentPushersNeverLoseOrCorruptAnAddress(t *testing.T) {
	q := New(1024)

	var wg sync.WaitGroup
	for i := 0; i < 1024; i++ {
		wg.Add(1)
		go func(addr uintptr) {
			defer wg.Done()
			require.True(t, q.Push(addr))
		}(uintptr(i + 1))
	}
	wg.Wait()

	seen := make(map[uintptr]bool)
	for {
		addr, ok := q.Pop()
		if !ok {
			break
		}
		require.False(t, seen[addr], "address popped twice: %#x", addr)
		seen[addr] = true
	}
	require.Len(t, seen, 1024)
}
