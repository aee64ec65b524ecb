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

package lifecycle

import (
	"sync"
	"time"

	"github.com/relaymesh/conductor/internal/sessionhost"
)

// Status is an AgentSession's position in its lifecycle.
type Status string

const (
	StatusStarting Status = "starting"
	StatusIdle     Status = "idle"
	StatusBusy     Status = "busy"
	StatusError    Status = "error"
	StatusOffline  Status = "offline"
)

// TaskStatus is an AgentTask's position in its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TokenUsage accumulates an agent session's spend (§3).
type TokenUsage struct {
	Total       int
	Cost        float64
	LastUpdated time.Time
}

// Performance tracks an agent session's running metrics, updated at each
// task completion (§4.E.2).
type Performance struct {
	TasksCompleted int
	AvgTaskMs      float64
	SuccessRate    float64
	ErrorCount     int
}

// record folds one task outcome into the running averages. durationMs is
// the task's wall-clock time; success reflects the task's final result.
func (p *Performance) record(durationMs int64, success bool) {
	p.TasksCompleted++
	n := float64(p.TasksCompleted)
	p.AvgTaskMs += (float64(durationMs) - p.AvgTaskMs) / n
	if !success {
		p.ErrorCount++
	}
	p.SuccessRate = (n - float64(p.ErrorCount)) / n
}

// AgentTask is one unit of dispatched work (§3).
type AgentTask struct {
	ID          string
	Type        Role
	Description string
	Payload     map[string]any
	Priority    int
	Status      TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       string
	TokenUsage  *TokenUsage
}

// AgentSession is the runtime state the Lifecycle Manager owns for one
// live (or starting) agent process (§3). It is created on first need and
// deleted on termination or process exit; the manager is its only writer.
type AgentSession struct {
	mu sync.Mutex

	SessionID    string
	AgentID      string
	Handle       sessionhost.Handle
	status       Status
	lastActivity time.Time
	currentTask  *AgentTask
	tokenUsage   TokenUsage
	performance  Performance

	unresponsiveStrikes int
}

func newAgentSession(sessionID, agentID string, handle sessionhost.Handle) *AgentSession {
	return &AgentSession{
		SessionID:    sessionID,
		AgentID:      agentID,
		Handle:       handle,
		status:       StatusStarting,
		lastActivity: time.Now(),
	}
}

// Status returns the session's current status.
func (s *AgentSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *AgentSession) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// LastActivity returns the timestamp of the session's last observed
// activity, used both for the health check and for the selection
// algorithm's tie-break (§4.E).
func (s *AgentSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *AgentSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.unresponsiveStrikes = 0
	s.mu.Unlock()
}

// CurrentTask returns the task currently assigned to the session, if any.
func (s *AgentSession) CurrentTask() *AgentTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTask
}

// TokenUsage returns a copy of the session's accumulated token usage.
func (s *AgentSession) TokenUsage() TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenUsage
}

// Performance returns a copy of the session's running performance metrics.
func (s *AgentSession) Performance() Performance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.performance
}

// beginTask atomically transitions the session from non-busy to busy and
// assigns task, returning false without changing anything if the session
// was already busy. Two concurrent dispatch attempts against the same
// session race here; exactly one observes true, so only one ever holds
// the session's pending-response slot at a time.
func (s *AgentSession) beginTask(task *AgentTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusBusy {
		return false
	}
	s.status = StatusBusy
	s.currentTask = task
	s.lastActivity = time.Now()
	return true
}

func (s *AgentSession) finishTask(success bool, durationMs int64, usage *TokenUsage) {
	s.mu.Lock()
	s.status = StatusIdle
	s.currentTask = nil
	s.lastActivity = time.Now()
	s.performance.record(durationMs, success)
	if usage != nil {
		s.tokenUsage = *usage
	}
	s.unresponsiveStrikes = 0
	s.mu.Unlock()
}
