// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orchestrator implements the Orchestrator Core (§4.I): the
// priority signal queue and the single-consumer processing loop that
// assembles context, requests a token budget, dispatches to an agent, and
// records the outcome.
package orchestrator

import (
	"container/heap"
	"context"
	"sync"

	"github.com/relaymesh/conductor/internal/signal"
)

// queueItem wraps a signal with the monotone sequence number used to
// break priority ties FIFO (§5, §8).
type queueItem struct {
	sig   signal.Signal
	seq   uint64
	index int
}

// priorityHeap is a container/heap.Interface ordering by priority
// descending, then by seq ascending -- the strict-priority/stable-FIFO
// contract §8 requires of Dequeue.
type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].sig.Priority != h[j].sig.Priority {
		return h[i].sig.Priority > h[j].sig.Priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue is the orchestrator's strict-priority, FIFO-within-priority signal
// queue. Dequeue blocks until an item is available or ctx is canceled.
type Queue struct {
	mu     sync.Mutex
	heap   priorityHeap
	seq    uint64
	notify chan struct{}
}

// NewQueue creates an empty priority queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue adds sig to the queue and wakes one blocked Dequeue, if any.
func (q *Queue) Enqueue(sig signal.Signal) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, &queueItem{sig: sig, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of signals currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Dequeue removes and returns the highest-priority queued signal,
// blocking until one is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (signal.Signal, bool) {
	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			item := heap.Pop(&q.heap).(*queueItem)
			q.mu.Unlock()
			return item.sig, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return signal.Signal{}, false
		case <-q.notify:
		}
	}
}
