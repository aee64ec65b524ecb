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

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/conductor/internal/bus"
	"github.com/relaymesh/conductor/internal/guidelines"
	"github.com/relaymesh/conductor/internal/lifecycle"
	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/signal"
	"github.com/relaymesh/conductor/internal/tokenbudget"
	"github.com/relaymesh/conductor/internal/warroom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultModelWindow     = 200000
	defaultDegradedWindow  = 50
	defaultDegradedRatio   = 0.5
	defaultHistoryLookback = 10 * time.Minute
	defaultDefaultRole     = lifecycle.Role("generalist")
)

// EventKind names the events the orchestrator publishes as it processes
// signals (§4.I.6).
type EventKind string

const (
	EventSignalProcessed EventKind = "signal_processed"
	EventSignalError     EventKind = "signal_error"
	EventDegradedMode    EventKind = "degraded_mode"
)

// Event reports one orchestrator-loop outcome.
type Event struct {
	Kind     EventKind
	SignalID string
	Err      string
}

// ParallelTask describes one sub-task of an explicitly parallel signal
// (§4.I.4b). A task with a non-empty Dependencies list waits for those
// sibling task IDs to complete before it is dispatched.
type ParallelTask struct {
	ID           string         `json:"id"`
	Role         string         `json:"role"`
	Description  string         `json:"description"`
	Payload      map[string]any `json:"payload"`
	Dependencies []string       `json:"dependencies"`
}

// Config tunes the orchestrator's budget and degraded-mode policy. New
// replaces any zero field with its default.
type Config struct {
	ModelWindow     int
	DegradedWindow  int
	DegradedRatio   float64
	HistoryLookback time.Duration
	DefaultRole     lifecycle.Role
}

// Orchestrator is the single-consumer Orchestrator Core (§4.I): it owns
// the priority signal queue and drives the dequeue/assemble/budget/
// dispatch/observe/emit loop.
type Orchestrator struct {
	queue   *Queue
	history *History
	errs    *errorTracker
	recent  *recentSignals

	memo       *warroom.Memo
	guidelines *guidelines.Registry
	lifecycle  *lifecycle.Manager

	cfg Config

	Events *bus.Bus[Event]

	wasDegraded bool
}

// New creates an Orchestrator wired to the given War-Room, Guidelines
// Registry, and Lifecycle Manager. cfg's zero fields are replaced with
// defaults.
func New(life *lifecycle.Manager, memo *warroom.Memo, registry *guidelines.Registry, cfg Config) *Orchestrator {
	if cfg.ModelWindow <= 0 {
		cfg.ModelWindow = defaultModelWindow
	}
	if cfg.DegradedWindow <= 0 {
		cfg.DegradedWindow = defaultDegradedWindow
	}
	if cfg.DegradedRatio <= 0 {
		cfg.DegradedRatio = defaultDegradedRatio
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = defaultHistoryLookback
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = defaultDefaultRole
	}
	return &Orchestrator{
		queue:      NewQueue(),
		history:    newHistory(),
		errs:       newErrorTracker(cfg.DegradedWindow, cfg.DegradedRatio),
		recent:     newRecentSignals(),
		memo:       memo,
		guidelines: registry,
		lifecycle:  life,
		cfg:        cfg,
		Events:     bus.New[Event]("orchestrator"),
	}
}

// Enqueue adds sig to the priority queue. It is the entry point external
// producers (the log streamer, the CLI, scanners) use to feed the
// orchestrator.
func (o *Orchestrator) Enqueue(sig signal.Signal) {
	o.queue.Enqueue(sig)
}

// Watch subscribes to signals and forwards every published Signal to
// Enqueue until ctx is done or the bus closes. Used to wire the Log
// Streamer's detected-signal bus into the orchestrator's queue.
func (o *Orchestrator) Watch(ctx context.Context, signals *bus.Bus[signal.Signal]) {
	ch, unsubscribe := signals.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				o.Enqueue(evt.Payload)
			}
		}
	}()
}

// History exposes the processing-history ring for metrics/status
// endpoints.
func (o *Orchestrator) History() *History { return o.history }

// Degraded reports whether the orchestrator is currently refusing
// non-fatal work.
func (o *Orchestrator) Degraded() bool { return o.errs.Degraded() }

// QueueLen reports the number of signals currently queued.
func (o *Orchestrator) QueueLen() int { return o.queue.Len() }

// Run is the single-consumer processing loop. It blocks until ctx is
// canceled, dequeuing and processing one signal at a time; the loop
// yields between steps so health checks, log streaming, and context
// compaction can make progress concurrently (§4.I).
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		sig, ok := o.queue.Dequeue(ctx)
		if !ok {
			return
		}
		o.process(ctx, sig)
	}
}

// isFatal reports whether sig belongs to the fatal class that
// short-circuits normal selection (§4.I failure policy).
func isFatal(sig signal.Signal) bool {
	return sig.Priority >= signal.PriorityFatal
}

// process runs one iteration of the dequeue/assemble/budget/dispatch/
// observe/emit loop for a single dequeued signal.
func (o *Orchestrator) process(ctx context.Context, sig signal.Signal) {
	fatal := isFatal(sig)

	if !fatal && o.errs.Degraded() {
		log.Warn("orchestrator: refusing non-fatal work in degraded mode", zap.String("signal", sig.ID))
		return
	}

	if fatal {
		o.escalate(sig, "fatal signal short-circuits normal dispatch")
		return
	}

	// Assemble.
	warRoom := o.memo.GetWarRoomStatus()
	recentHistory := o.history.Recent(time.Now().Add(-o.cfg.HistoryLookback))
	activeAgents := o.lifecycle.ActiveSessionCount()
	executions := o.guidelines.ProcessSignal(sig)

	correlated := o.recent.correlated(sig)
	o.recent.observe(sig)
	complexity := classifyComplexity(sig, correlated)

	log.Debug("orchestrator: assembled context",
		zap.String("signal", sig.ID),
		zap.Int("warRoomItems", warRoom.TotalItems),
		zap.Int("recentDecisions", len(recentHistory)),
		zap.Int("activeAgents", activeAgents),
		zap.Int("applicableGuidelines", len(executions)),
		zap.String("complexity", string(complexity)))

	// Budget.
	budget := tokenbudget.Allocate(activeAgents, o.cfg.ModelWindow, complexity)
	if budget.Compaction != nil {
		log.Info("orchestrator: compaction_applied",
			zap.String("signal", sig.ID), zap.Any("deltas", budget.Compaction.Deltas))
	}

	// Dispatch.
	started := time.Now()
	o.memo.AddToWarRoom(warroom.SectionDoing, sig.ID)

	var (
		success     bool
		tokenUsage  int
		dispatchErr error
	)
	if tasks, ok := parallelTasksFromPayload(sig); ok && len(tasks) > 0 {
		success, tokenUsage, dispatchErr = o.dispatchParallel(ctx, sig, tasks)
	} else {
		success, tokenUsage, dispatchErr = o.dispatchDirect(ctx, sig)
	}

	for _, exec := range executions {
		exec.Start()
		exec.Complete(nil, tokenUsage, dispatchErr)
	}

	// Observe.
	durationMs := time.Since(started).Milliseconds()
	if success {
		o.memo.MoveInWarRoom(warroom.SectionDoing, warroom.SectionDone, sig.ID)
	} else {
		o.memo.MoveInWarRoom(warroom.SectionDoing, warroom.SectionBlockers, sig.ID)
	}

	o.history.record(ProcessingRecord{
		SignalID:   sig.ID,
		Timestamp:  time.Now(),
		TokenUsage: tokenUsage,
		DurationMs: durationMs,
		Success:    success,
	})

	degraded := o.errs.record(success)
	if degraded && !o.wasDegraded {
		o.Events.Publish(bus.Created(Event{Kind: EventDegradedMode, SignalID: sig.ID}))
	}
	o.wasDegraded = degraded

	// Emit.
	if success {
		o.Events.Publish(bus.Created(Event{Kind: EventSignalProcessed, SignalID: sig.ID}))
	} else {
		o.Events.Publish(bus.Created(Event{Kind: EventSignalError, SignalID: sig.ID, Err: errString(dispatchErr)}))
	}
}

// dispatchDirect runs the default single-agent dispatch path.
func (o *Orchestrator) dispatchDirect(ctx context.Context, sig signal.Signal) (success bool, tokenUsage int, err error) {
	role := roleFromPayload(sig, o.cfg.DefaultRole)
	task := lifecycle.AgentTask{
		ID:          sig.ID,
		Type:        role,
		Description: descriptionFromPayload(sig),
		Payload:     sig.Payload,
		Priority:    sig.Priority,
		Status:      lifecycle.TaskPending,
	}

	result, execErr := o.lifecycle.ExecuteTask(ctx, task)
	if execErr != nil {
		return false, 0, execErr
	}
	if result.TokenUsage != nil {
		tokenUsage = result.TokenUsage.Total
	}
	return result.Status == lifecycle.TaskCompleted, tokenUsage, nil
}

// dispatchParallel runs each declared sub-task concurrently, honoring any
// declared Dependencies by running in topologically ordered waves (§4.I.4b).
// A wave's tasks run concurrently via errgroup; a failure in one task does
// not cancel its siblings in the same wave, nor does it stop later waves
// from running (their own dependencies may still be satisfiable) — the
// overall result is still reported unsuccessful via allSucceeded. Only a
// wave with zero ready tasks (an unresolvable dependency graph) stops the
// loop early, failing whatever remains undispatched.
func (o *Orchestrator) dispatchParallel(ctx context.Context, sig signal.Signal, tasks []ParallelTask) (success bool, tokenUsage int, err error) {
	done := make(map[string]bool, len(tasks))
	remaining := append([]ParallelTask(nil), tasks...)

	allSucceeded := true
	for len(remaining) > 0 {
		wave, rest, progressed := nextWave(remaining, done)
		if !progressed {
			// Circular or unresolvable dependency: fail the undispatched tail.
			allSucceeded = false
			break
		}
		remaining = rest

		var group errgroup.Group
		results := make([]bool, len(wave))
		usages := make([]int, len(wave))
		for i, t := range wave {
			i, t := i, t
			group.Go(func() error {
				ok, used, taskErr := o.dispatchOne(ctx, sig, t)
				results[i] = ok
				usages[i] = used
				return taskErr
			})
		}
		waveErr := group.Wait()
		for i, t := range wave {
			done[t.ID] = true
			tokenUsage += usages[i]
			if !results[i] {
				allSucceeded = false
			}
		}
		if waveErr != nil && err == nil {
			err = waveErr
		}
	}

	return allSucceeded, tokenUsage, err
}

// dispatchOne runs a single sub-task through the Lifecycle Manager.
func (o *Orchestrator) dispatchOne(ctx context.Context, sig signal.Signal, t ParallelTask) (bool, int, error) {
	role := lifecycle.Role(t.Role)
	if role == "" {
		role = o.cfg.DefaultRole
	}
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	task := lifecycle.AgentTask{
		ID:          id,
		Type:        role,
		Description: t.Description,
		Payload:     t.Payload,
		Priority:    sig.Priority,
		Status:      lifecycle.TaskPending,
	}
	result, execErr := o.lifecycle.ExecuteTask(ctx, task)
	if execErr != nil {
		return false, 0, execErr
	}
	used := 0
	if result.TokenUsage != nil {
		used = result.TokenUsage.Total
	}
	return result.Status == lifecycle.TaskCompleted, used, nil
}

// nextWave splits tasks into the subset whose declared dependencies are
// all satisfied by done (the next wave to dispatch) and the remainder.
// progressed is false if no task's dependencies are satisfied, signaling
// an unresolvable dependency graph.
func nextWave(tasks []ParallelTask, done map[string]bool) (wave, rest []ParallelTask, progressed bool) {
	for _, t := range tasks {
		ready := true
		for _, dep := range t.Dependencies {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, t)
		} else {
			rest = append(rest, t)
		}
	}
	return wave, rest, len(wave) > 0
}

// escalate handles a fatal signal: it records a non-success processing
// entry without attempting agent selection (§4.I failure policy). It is
// called only for fatal signals; a task that fails with
// lifecycle.ErrNoSuitableAgent is not escalated and takes the ordinary
// failure path in process (blockers entry, failed record, signal_error).
func (o *Orchestrator) escalate(sig signal.Signal, reason string) {
	log.Warn("orchestrator: escalation", zap.String("signal", sig.ID), zap.String("reason", reason))
	o.memo.AddToWarRoom(warroom.SectionBlockers, fmt.Sprintf("escalation: %s (%s)", sig.ID, reason))

	o.history.record(ProcessingRecord{
		SignalID:  sig.ID,
		Timestamp: time.Now(),
		Success:   false,
	})
	degraded := o.errs.record(false)
	if degraded && !o.wasDegraded {
		o.Events.Publish(bus.Created(Event{Kind: EventDegradedMode, SignalID: sig.ID}))
	}
	o.wasDegraded = degraded

	o.Events.Publish(bus.Created(Event{Kind: EventSignalError, SignalID: sig.ID, Err: reason}))
}

// parallelTasksFromPayload decodes a "parallelTasks" payload entry, the
// convention by which a signal requests explicitly parallel dispatch
// (§4.I.4b). Absent or malformed entries mean "no", not an error.
func parallelTasksFromPayload(sig signal.Signal) ([]ParallelTask, bool) {
	raw, ok := sig.Payload["parallelTasks"]
	if !ok {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]ParallelTask, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := ParallelTask{}
		if v, ok := m["id"].(string); ok {
			t.ID = v
		}
		if v, ok := m["role"].(string); ok {
			t.Role = v
		}
		if v, ok := m["description"].(string); ok {
			t.Description = v
		}
		if v, ok := m["payload"].(map[string]any); ok {
			t.Payload = v
		}
		if v, ok := m["dependencies"].([]any); ok {
			for _, d := range v {
				if s, ok := d.(string); ok {
					t.Dependencies = append(t.Dependencies, s)
				}
			}
		}
		out = append(out, t)
	}
	return out, len(out) > 0
}

// roleFromPayload reads an explicit "role" key from sig's payload,
// falling back to def when absent or not a string.
func roleFromPayload(sig signal.Signal, def lifecycle.Role) lifecycle.Role {
	if v, ok := sig.Payload["role"].(string); ok && v != "" {
		return lifecycle.Role(v)
	}
	return def
}

// descriptionFromPayload reads an explicit "description" key, falling
// back to the signal's kind and source when absent.
func descriptionFromPayload(sig signal.Signal) string {
	if v, ok := sig.Payload["description"].(string); ok && v != "" {
		return v
	}
	return fmt.Sprintf("%s from %s", sig.Kind, sig.Source)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
