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

// Package logstream tails agent session output, classifies each line's
// level, regex-matches the signal token grammar (§6), and emits detected
// signals back into the pipeline with provenance (§4.C).
package logstream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/conductor/internal/csync"
	"github.com/rivo/uniseg"
)

// Level is a log line's classified severity.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Config bundles the tunables §4.C names for the streamer and its
// auto-discovery loop.
type Config struct {
	BufferSize             int           // ring buffer capacity per session (default 1000, §5)
	MaxLogLineLength       int           // truncation cap per line
	AutoDiscovery          bool          // enumerate the Session Host for unknown sessions
	MonitorInterval        time.Duration // auto-discovery poll period
	SignalDetectionTimeout time.Duration // per-line detection deadline
	DrainGrace             time.Duration // teardown grace period (default 5s, §4.C)
	AgentNameMarkers       []string      // substrings identifying an "agent-like" session name
}

// DefaultConfig returns the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:             1000,
		MaxLogLineLength:       2000,
		AutoDiscovery:          true,
		MonitorInterval:        10 * time.Second,
		SignalDetectionTimeout: 2 * time.Second,
		DrainGrace:             5 * time.Second,
		AgentNameMarkers:       []string{"agent-", "conductor-", "worker-"},
	}
}

// LogEntry is one line recorded into a session's ring buffer (§3).
type LogEntry struct {
	ID              string
	Timestamp       time.Time
	Level           Level
	Content         string
	DetectedSignals []string // ids of signals detected on this line
}

// State is a stream's position in the §4.C state machine.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
	StateErrored  State = "errored"
)

// Metrics accumulates the counters §3 requires per session.
type Metrics struct {
	LineCount       int
	SignalsDetected int
	Errors          int
}

// Stream is one session's log ring buffer plus its detection counters and
// current lifecycle state. The buffer never exceeds BufferSize entries
// (§8 invariant): once full, the oldest entry is evicted FIFO.
type Stream struct {
	SessionID string
	AgentID   string

	entries   *csync.Slice[LogEntry]
	startedAt time.Time

	mu     sync.Mutex
	state  State
	metric Metrics
}

func newStream(sessionID, agentID string, bufferSize int) *Stream {
	return &Stream{
		SessionID: sessionID,
		AgentID:   agentID,
		entries:   csync.NewBoundedSlice[LogEntry](bufferSize),
		startedAt: time.Now(),
		state:     StateStarting,
	}
}

// State returns the stream's current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Entries returns a snapshot of the ring buffer in insertion order.
func (s *Stream) Entries() []LogEntry {
	return s.entries.Items()
}

// Metrics returns a copy of the stream's counters.
func (s *Stream) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metric
}

func (s *Stream) recordLine(entry LogEntry, signalsDetected int) {
	s.entries.Append(entry)
	s.mu.Lock()
	s.metric.LineCount++
	s.metric.SignalsDetected += signalsDetected
	s.mu.Unlock()
}

func (s *Stream) recordError() {
	s.mu.Lock()
	s.metric.Errors++
	s.mu.Unlock()
}

// truncate cuts content to at most maxLen grapheme clusters, walking
// cluster boundaries with uniseg so multi-byte or combining-mark output
// from an agent subprocess is never split mid-character.
func truncate(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	gr := uniseg.NewGraphemes(content)
	count := 0
	end := 0
	for gr.Next() {
		if count >= maxLen {
			break
		}
		_, to := gr.Positions()
		end = to
		count++
	}
	return content[:end]
}

func newEntryID() string { return uuid.NewString() }
