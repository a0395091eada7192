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

// Package busfault implements the process-wide bus-fault queue that spec
// §6 treats as an external primitive: a non-blocking, fixed-capacity ring
// buffer that a signal-adjacent producer pushes faulting addresses onto,
// and that a cache's owning goroutine drains with Pop.
//
// The ring buffer itself never blocks and never allocates after
// construction, so it is safe to push from the recover() handler installed
// around Cache.ReadAt (see sigwatch.go) even though that handler is running
// on an ordinary goroutine stack rather than a true signal handler.
package busfault

import "sync/atomic"

const defaultCapacity = 4096

// slot pairs a pending value with a sequence number that publishes whether
// the value has actually been written yet. Claiming a slot (via head/tail
// CAS) and populating it are two separate steps; without a per-slot
// sequence, a Pop that only compares head/tail can win its CAS and read a
// slot before the matching Push has stored into it.
type slot struct {
	sequence atomic.Uint64
	value    atomic.Uintptr
}

// Queue is a many-producer, many-consumer ring buffer of faulting
// addresses; in practice it has many producers and one drainer. The zero value is not
// usable; use New.
//
// Push/Pop follow Dmitry Vyukov's bounded MPMC queue: each slot publishes
// readiness through its own sequence counter instead of relying on the
// head/tail indices alone, so a slot is only visible to Pop once its Push
// has finished storing into it.
type Queue struct {
	slots []slot
	head  atomic.Uint64 // next position to claim for writing
	tail  atomic.Uint64 // next position to claim for reading
}

// New returns a queue with room for capacity pending addresses. A full
// queue cannot drop its oldest pending address without synchronizing with
// the reader, so Push instead reports failure and drops nothing; callers
// that cannot block (signal handlers) are expected to ignore that failure,
// matching the "lock-free queue" contract in spec §4.5: the protocol
// assumes the handler "allows the faulting instruction to be retried
// safely" after drain, not that every push is durable under overflow.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	q := &Queue{slots: make([]slot, capacity)}
	for i := range q.slots {
		q.slots[i].sequence.Store(uint64(i))
	}
	return q
}

// Push enqueues addr. It reports false if the queue is full.
func (q *Queue) Push(addr uintptr) bool {
	n := uint64(len(q.slots))
	pos := q.head.Load()
	for {
		s := &q.slots[pos%n]
		seq := s.sequence.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.value.Store(addr)
				s.sequence.Store(pos + 1)
				return true
			}
			pos = q.head.Load()
		case diff < 0:
			return false // full: this slot hasn't been drained yet
		default:
			pos = q.head.Load()
		}
	}
}

// Pop removes and returns the next pending address. ok is false when the
// queue is empty, the Go rendering of spec §6's "empty" sentinel.
func (q *Queue) Pop() (addr uintptr, ok bool) {
	n := uint64(len(q.slots))
	pos := q.tail.Load()
	for {
		s := &q.slots[pos%n]
		seq := s.sequence.Load()
		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				addr = s.value.Load()
				s.sequence.Store(pos + n)
				return addr, true
			}
			pos = q.tail.Load()
		case diff < 0:
			return 0, false // empty: producer hasn't published this slot yet
		default:
			pos = q.tail.Load()
		}
	}
}

// Global is the process-wide queue spec §5 describes ("shared resources:
// the bus-fault queue is process-wide"). Every Cache drains the same
// instance.
var Global = New(defaultCapacity)
