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

package logstream

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/relaymesh/conductor/internal/agentipc"
	"github.com/relaymesh/conductor/internal/bus"
	"github.com/relaymesh/conductor/internal/csync"
	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/relaymesh/conductor/internal/signal"
	"go.uber.org/zap"
)

// SessionResponse pairs a decoded IPC response frame (§6) with the session
// it arrived on, so a single shared Responses bus can serve every session's
// awaiters at once.
type SessionResponse struct {
	SessionID string
	Response  agentipc.Response
}

// LifecycleKind names a stream state-transition event (§4.C).
type LifecycleKind string

const (
	EventStreamStarted LifecycleKind = "streaming:started"
	EventStreamStopped LifecycleKind = "streaming:stopped"
	EventStreamError   LifecycleKind = "streaming:error"
)

// LifecycleEvent reports a stream's state transition with its accumulated
// metrics, per §4.C.
type LifecycleEvent struct {
	Kind      LifecycleKind
	SessionID string
	AgentID   string
	Duration  time.Duration
	Metrics   Metrics
}

// AgentLogsChannel is the bus channel name §4.C and §8's scenarios publish
// detected signals to.
const AgentLogsChannel = "agent-logs"

// Streamer tails every session it is told to watch, classifying and
// signal-detecting each line, and publishing results onto Signals (the
// "agent-logs" channel the Orchestrator subscribes to) and Lifecycle (the
// stream's own starting/active/draining/stopped/errored transitions).
type Streamer struct {
	host    sessionhost.Host
	cfg     Config
	catalog *signal.Catalog

	streams *csync.Map[string, *Stream]

	Signals   *bus.Bus[signal.Signal]
	Lifecycle *bus.Bus[LifecycleEvent]
	Responses *bus.Bus[SessionResponse]
}

// New creates a Streamer bound to host, detecting against catalog.
func New(host sessionhost.Host, catalog *signal.Catalog, cfg Config) *Streamer {
	return &Streamer{
		host:      host,
		cfg:       cfg,
		catalog:   catalog,
		streams:   csync.NewMap[string, *Stream](),
		Signals:   bus.New[signal.Signal](AgentLogsChannel),
		Lifecycle: bus.New[LifecycleEvent]("logstream-lifecycle"),
		Responses: bus.New[SessionResponse]("logstream-responses"),
	}
}

// Stream returns the tracked stream for sessionID, if any.
func (s *Streamer) Stream(sessionID string) (*Stream, bool) {
	return s.streams.Get(sessionID)
}

// Sessions returns every session id currently tracked.
func (s *Streamer) Sessions() []string {
	return s.streams.Keys()
}

// StartStream begins tailing handle's output as sessionID/agentID. The
// stream transitions starting -> active as soon as its tailing goroutine
// starts, before any line is read, and runs until the output channel
// closes or ctx is canceled.
func (s *Streamer) StartStream(ctx context.Context, sessionID, agentID string, handle sessionhost.Handle) error {
	if _, exists := s.streams.Get(sessionID); exists {
		return fmt.Errorf("logstream: session %q already tracked", sessionID)
	}

	lines, err := s.host.ReadOutput(ctx, handle)
	if err != nil {
		return fmt.Errorf("logstream: read output for %q: %w", sessionID, err)
	}

	stream := newStream(sessionID, agentID, s.cfg.BufferSize)
	s.streams.Set(sessionID, stream)

	go s.tail(ctx, stream, lines)
	return nil
}

func (s *Streamer) tail(ctx context.Context, stream *Stream, lines <-chan string) {
	stream.setState(StateActive)
	s.Lifecycle.Publish(bus.Created(LifecycleEvent{Kind: EventStreamStarted, SessionID: stream.SessionID, AgentID: stream.AgentID}))

	for {
		select {
		case <-ctx.Done():
			s.finishStream(stream, StateStopped, nil)
			return
		case line, ok := <-lines:
			if !ok {
				s.finishStream(stream, StateStopped, nil)
				return
			}
			s.processLine(stream, line)
		}
	}
}

func (s *Streamer) finishStream(stream *Stream, finalState State, cause error) {
	grace := s.cfg.DrainGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	stream.setState(StateDraining)
	time.Sleep(grace)

	if cause != nil {
		stream.setState(StateErrored)
		stream.recordError()
		s.Lifecycle.Publish(bus.Created(LifecycleEvent{
			Kind: EventStreamError, SessionID: stream.SessionID, AgentID: stream.AgentID,
			Duration: time.Since(stream.startedAt), Metrics: stream.Metrics(),
		}))
		return
	}

	stream.setState(finalState)
	s.Lifecycle.Publish(bus.Created(LifecycleEvent{
		Kind: EventStreamStopped, SessionID: stream.SessionID, AgentID: stream.AgentID,
		Duration: time.Since(stream.startedAt), Metrics: stream.Metrics(),
	}))
}

// processLine runs the §4.C per-line pipeline: strip ANSI, truncate,
// classify, buffer, detect, and publish.
func (s *Streamer) processLine(stream *Stream, raw string) {
	plain := ansi.Strip(raw)
	truncated := truncate(plain, s.cfg.MaxLogLineLength)

	if resp, ok := agentipc.ParseResponse(truncated); ok {
		s.Responses.Publish(bus.Created(SessionResponse{SessionID: stream.SessionID, Response: resp}))
		stream.recordLine(LogEntry{
			ID:        newEntryID(),
			Timestamp: time.Now(),
			Level:     LevelDebug,
			Content:   truncated,
		}, 0)
		return
	}

	level := ClassifyLevel(truncated)

	detections := Detect(s.catalog, truncated)
	ids := make([]string, 0, len(detections))
	for _, d := range detections {
		sig := signal.New(d.Kind,
			signal.WithSource("agent:"+stream.AgentID),
			signal.WithPriority(d.Priority),
			signal.WithPayload(map[string]any{
				"confidence": d.Confidence,
				"context":    d.Context,
			}),
		)
		ids = append(ids, sig.ID)
		s.Signals.Publish(bus.Created(sig))
	}

	entry := LogEntry{
		ID:              newEntryID(),
		Timestamp:       time.Now(),
		Level:           level,
		Content:         truncated,
		DetectedSignals: ids,
	}
	stream.recordLine(entry, len(detections))

	if level == LevelCritical || level == LevelError {
		log.Debug("logstream: line classified",
			zap.String("session", stream.SessionID), zap.String("level", string(level)))
	}
}

// StopStream requests a graceful stop of sessionID's tailing goroutine by
// terminating its underlying host session; the tail loop observes the
// resulting channel close and completes the drain itself.
func (s *Streamer) StopStream(ctx context.Context, sessionID string, handle sessionhost.Handle, reason string) error {
	if _, ok := s.streams.Get(sessionID); !ok {
		return fmt.Errorf("logstream: session %q not tracked", sessionID)
	}
	return s.host.TerminateSession(ctx, handle, reason)
}

// Forget removes sessionID's bookkeeping, e.g. once its drain grace period
// has elapsed and the caller no longer needs its buffer.
func (s *Streamer) Forget(sessionID string) {
	s.streams.Delete(sessionID)
}
