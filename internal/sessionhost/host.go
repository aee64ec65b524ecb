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

// Package sessionhost defines the abstract Session Host contract (§4.D):
// the five operations the Lifecycle Manager needs from whatever actually
// spawns and owns an agent's OS process, independent of which concrete
// backend is in use.
package sessionhost

import "context"

// Handle identifies a live session. Backends are free to choose their own
// underlying representation; callers only ever compare handles for
// equality and pass them back into the same Host that issued them.
type Handle string

// Config is everything a backend needs to start a session: the argv to
// run, the environment to run it with, and the working directory.
type Config struct {
	RunCommand []string
	Env        map[string]string
	Cwd        string
}

// Host is the capability set every backend must implement (§4.D). The
// Lifecycle Manager depends only on this interface, never on a concrete
// backend.
type Host interface {
	// CreateSession spawns a new session for agentID running cfg, sends
	// instructions as its first input, and returns a handle to it.
	CreateSession(ctx context.Context, agentID string, cfg Config, instructions string) (Handle, error)

	// SendInstructions writes an additional line of input to an existing
	// session.
	SendInstructions(ctx context.Context, handle Handle, text string) error

	// ListSessions returns every handle this host currently owns.
	ListSessions(ctx context.Context) ([]Handle, error)

	// TerminateSession ends a session. Backends implement the two-phase
	// graceful-then-forceful contract internally (§4.E.5); reason is
	// passed through for logging/audit only.
	TerminateSession(ctx context.Context, handle Handle, reason string) error

	// ReadOutput returns a channel of output lines for handle, closed when
	// the session exits or ctx is canceled. Used by the Log Streamer.
	ReadOutput(ctx context.Context, handle Handle) (<-chan string, error)
}
