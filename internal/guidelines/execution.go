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

package guidelines

import (
	"sync"
	"time"
)

// ExecutionStatus is the state of a single guideline execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Execution tracks one guideline run triggered by a signal (§4.H).
type Execution struct {
	mu sync.Mutex

	ID          string
	GuidelineID string
	SignalID    string
	Status      ExecutionStatus
	StartedAt   time.Time
	CompletedAt time.Time
	TokenCost   int
}

func newExecution(guidelineID, signalID string) *Execution {
	return &Execution{
		ID:          newExecutionID(),
		GuidelineID: guidelineID,
		SignalID:    signalID,
		Status:      ExecutionPending,
	}
}

// Start transitions pending -> running.
func (e *Execution) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = ExecutionRunning
	e.StartedAt = time.Now()
}

// Complete transitions running -> completed|failed depending on whether
// execErr is nil, and records the metrics the registry tracks per
// guideline.
func (e *Execution) Complete(m *Metrics, tokenCost int, execErr error) {
	e.mu.Lock()
	e.CompletedAt = time.Now()
	e.TokenCost = tokenCost
	duration := e.CompletedAt.Sub(e.StartedAt)
	success := execErr == nil
	if success {
		e.Status = ExecutionCompleted
	} else {
		e.Status = ExecutionFailed
	}
	e.mu.Unlock()

	if m != nil {
		m.record(success, duration, tokenCost)
	}
}

// Metrics is the running aggregate for one guideline's executions.
type Metrics struct {
	mu sync.Mutex

	TotalExecutions int
	Successful      int
	Failed          int
	AvgDurationMs   float64
	AvgTokenCost    float64
}

func (m *Metrics) record(success bool, duration time.Duration, tokenCost int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := float64(m.TotalExecutions)
	m.AvgDurationMs = (m.AvgDurationMs*n + float64(duration.Milliseconds())) / (n + 1)
	m.AvgTokenCost = (m.AvgTokenCost*n + float64(tokenCost)) / (n + 1)
	m.TotalExecutions++
	if success {
		m.Successful++
	} else {
		m.Failed++
	}
}

// SuccessRate returns Successful/TotalExecutions, or 0 if none have run.
func (m *Metrics) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.Successful) / float64(m.TotalExecutions)
}
