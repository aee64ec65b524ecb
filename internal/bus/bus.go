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
// Package bus is a generic publish/subscribe event bus with per-subscriber
// bounded mailboxes. It is the runtime's only fan-out mechanism between
// components (signal producers, the orchestrator, the guidelines
// dispatcher) -- never a message broker (see DESIGN.md).
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/relaymesh/conductor/internal/log"
	"go.uber.org/zap"
)

// EventType classifies a published event the way the teacher's pubsub
// package does (created/updated/deleted), generalized here to the two
// kinds this runtime actually emits: a new item, or a state change to an
// existing one.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
)

// Event wraps a payload with its type, mirroring the teacher's
// internal/pubsub.Event[T] envelope.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// Created builds a created Event.
func Created[T any](payload T) Event[T] { return Event[T]{Type: EventCreated, Payload: payload} }

// Updated builds an updated Event.
func Updated[T any](payload T) Event[T] { return Event[T]{Type: EventUpdated, Payload: payload} }

const defaultMailboxSize = 64

// subscription is one subscriber's bounded mailbox on a single channel.
type subscription[T any] struct {
	ch      chan Event[T]
	closeCh chan struct{}
	once    sync.Once
}

func (s *subscription[T]) close() {
	s.once.Do(func() { close(s.closeCh) })
}

// Bus is a single named channel of events of type T. Each subscriber gets
// its own bounded mailbox; a slow subscriber drops events rather than
// blocking the publisher (§4.B).
type Bus[T any] struct {
	name string

	mu   sync.Mutex
	subs map[int]*subscription[T]
	next int

	published int64
	dropped   int64
}

// New creates a bus identified by name, used only for log attribution.
func New[T any](name string) *Bus[T] {
	return &Bus[T]{name: name, subs: make(map[int]*subscription[T])}
}

// Subscribe registers a new subscriber and returns a receive-only channel
// of events plus an Unsubscribe function. The channel is closed once
// Unsubscribe is called; callers must keep draining it until closure to
// avoid leaking the subscription's goroutine-free mailbox.
func (b *Bus[T]) Subscribe() (<-chan Event[T], func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscription[T]{
		ch:      make(chan Event[T], defaultMailboxSize),
		closeCh: make(chan struct{}),
	}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Publish delivers evt to every current subscriber's mailbox. Delivery is
// non-blocking: a subscriber whose mailbox is full has the event dropped
// for it specifically, logged at warn level, rather than stalling the
// publisher or other subscribers.
func (b *Bus[T]) Publish(evt Event[T]) {
	atomic.AddInt64(&b.published, 1)

	b.mu.Lock()
	subs := make([]*subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			atomic.AddInt64(&b.dropped, 1)
			log.Warn("bus: dropping event for full subscriber mailbox",
				zap.String("bus", b.name), zap.String("event_type", string(evt.Type)))
		}
	}
}

// Stats reports cumulative publish/drop counters and the current
// subscriber count, used by health checks and tests.
type Stats struct {
	Published   int64
	Dropped     int64
	Subscribers int
}

// Stats returns a snapshot of the bus's counters.
func (b *Bus[T]) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return Stats{
		Published:   atomic.LoadInt64(&b.published),
		Dropped:     atomic.LoadInt64(&b.dropped),
		Subscribers: n,
	}
}
