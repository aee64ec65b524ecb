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

import "errors"

// Sentinel errors surfaced by executeTask and session management (§7).
var (
	// ErrNoSuitableAgent is returned when the selection algorithm finds no
	// agent with a positive score for a task.
	ErrNoSuitableAgent = errors.New("lifecycle: no suitable agent for task")

	// ErrAgentResponseTimeout is returned when a dispatched task's response
	// does not arrive within its deadline.
	ErrAgentResponseTimeout = errors.New("lifecycle: agent response timeout")

	// ErrAgentNotReady is returned when a newly created session does not
	// reach StatusIdle within its startup deadline.
	ErrAgentNotReady = errors.New("lifecycle: agent session not ready")

	// ErrCancelled is returned to any pending awaiter when its context is
	// canceled before a result arrives.
	ErrCancelled = errors.New("lifecycle: cancelled")

	// ErrConfigurationInvalid is returned by RegisterAgent when an
	// AgentConfig fails validation.
	ErrConfigurationInvalid = errors.New("lifecycle: configuration invalid")

	// ErrSessionBusy guards the §8 invariant that no two concurrent tasks
	// share a session id: it is returned if dispatch ever finds its chosen
	// session already busy at assignment time.
	ErrSessionBusy = errors.New("lifecycle: session busy")

	// ErrUnknownAgent is returned when an operation names an agent id that
	// was never registered.
	ErrUnknownAgent = errors.New("lifecycle: unknown agent")
)
