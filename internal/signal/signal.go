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
// Package signal defines the canonical Signal envelope and priority catalog
// shared by every producer (scanners, the log streamer, the CLI) and
// consumer (the orchestrator, the guidelines dispatcher) in the runtime.
package signal

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Signal.
type State string

const (
	StateActive   State = "active"
	StateResolved State = "resolved"
	StateExpired  State = "expired"
)

// Kind is a two-character signal token as it appears in agent log lines,
// e.g. "tp" for a progress marker. Unknown kinds are valid values (the
// catalog is total but callers may see tokens outside it); Catalog.Lookup
// reports whether a kind is registered.
type Kind string

// Provenance records where a signal of a given kind is expected to
// originate, used for confidence scoring during detection (§4.C).
type Provenance string

const (
	ProvenanceAgentLog Provenance = "agent_log"
	ProvenanceScanner  Provenance = "scanner"
	ProvenanceUser     Provenance = "user"
)

// Signal is an immutable record describing something that happened and
// that the orchestrator may need to act on. Once emitted its fields never
// change; a state transition produces a new Signal whose ReplyTo points at
// the original (§3).
type Signal struct {
	ID        string
	Kind      Kind
	Priority  int // 1 (lowest) .. 10 (fatal)
	Source    string
	Timestamp time.Time
	Payload   map[string]any
	ReplyTo   string // optional: id of the signal this one resolves/replies to
	State     State
}

// Option mutates a Signal under construction. Used by New so call sites
// read as New(kind, WithSource(...), WithPayload(...)) rather than building
// a literal with every optional field spelled out.
type Option func(*Signal)

// WithSource sets the free-form origin label.
func WithSource(source string) Option {
	return func(s *Signal) { s.Source = source }
}

// WithPayload attaches an opaque payload map.
func WithPayload(payload map[string]any) Option {
	return func(s *Signal) { s.Payload = payload }
}

// WithPriority overrides the catalog-derived priority.
func WithPriority(priority int) Option {
	return func(s *Signal) { s.Priority = priority }
}

// WithReplyTo marks this signal as replying to a prior one.
func WithReplyTo(id string) Option {
	return func(s *Signal) { s.ReplyTo = id }
}

// New constructs an active Signal with a fresh ID and the catalog's default
// priority for kind (0 if kind is unregistered; callers should usually pass
// WithPriority in that case).
func New(kind Kind, opts ...Option) Signal {
	s := Signal{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		State:     StateActive,
		Payload:   map[string]any{},
	}
	if entry, ok := DefaultCatalog.Lookup(kind); ok {
		s.Priority = entry.Priority
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Resolve produces a new Signal with State=resolved and ReplyTo pointing at
// the original, per the §3 invariant that transitions never mutate the
// original record.
func Resolve(original Signal) Signal {
	next := New(original.Kind, WithSource(original.Source), WithPriority(original.Priority), WithReplyTo(original.ID))
	next.State = StateResolved
	return next
}

// Expire produces a new Signal with State=expired, ReplyTo pointing at the
// original.
func Expire(original Signal) Signal {
	next := New(original.Kind, WithSource(original.Source), WithPriority(original.Priority), WithReplyTo(original.ID))
	next.State = StateExpired
	return next
}

// NewTransition builds a follow-on signal of kind that replies to parent,
// e.g. a review-approval (ra) signal replying to the review (rv) that
// prompted it. The new signal gets its own catalog-derived priority unless
// overridden by opts.
func NewTransition(parent Signal, kind Kind, payload map[string]any, opts ...Option) Signal {
	base := append([]Option{WithSource(parent.Source), WithReplyTo(parent.ID), WithPayload(payload)}, opts...)
	return New(kind, base...)
}
