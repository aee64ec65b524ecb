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

// Package subprocess is the fallback Session Host backend (§4.D): a plain
// OS process with piped stdio, no terminal multiplexer involved.
package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"go.uber.org/zap"
)

type session struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	cancel context.CancelFunc
}

// Host implements sessionhost.Host over os/exec-spawned subprocesses.
type Host struct {
	mu       sync.Mutex
	sessions map[sessionhost.Handle]*session
	nextID   int
}

// New creates an empty subprocess-backed host.
func New() *Host {
	return &Host{sessions: make(map[sessionhost.Handle]*session)}
}

var _ sessionhost.Host = (*Host)(nil)

func (h *Host) newHandle() sessionhost.Handle {
	h.nextID++
	return sessionhost.Handle(fmt.Sprintf("subprocess-%d", h.nextID))
}

// CreateSession starts cfg.RunCommand as a child process, writes
// instructions to its stdin, and begins tailing its stdout into a line
// channel consumed via ReadOutput.
func (h *Host) CreateSession(ctx context.Context, agentID string, cfg sessionhost.Config, instructions string) (sessionhost.Handle, error) {
	if len(cfg.RunCommand) == 0 {
		return "", fmt.Errorf("subprocess: empty run command for agent %q", agentID)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, cfg.RunCommand[0], cfg.RunCommand[1:]...)
	cmd.Dir = cfg.Cwd
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("subprocess: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("subprocess: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("subprocess: start agent %q: %w", agentID, err)
	}

	s := &session{cmd: cmd, stdin: stdin, lines: make(chan string, 256), cancel: cancel}
	go s.tail(stdout)

	h.mu.Lock()
	handle := h.newHandle()
	h.sessions[handle] = s
	h.mu.Unlock()

	if instructions != "" {
		if err := h.SendInstructions(ctx, handle, instructions); err != nil {
			return handle, err
		}
	}
	return handle, nil
}

func (s *session) tail(stdout io.ReadCloser) {
	defer close(s.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	if err := s.cmd.Wait(); err != nil {
		log.Warn("subprocess: agent process exited with error", zap.Error(err))
	}
}

// SendInstructions writes text plus a trailing newline to the session's
// stdin.
func (h *Host) SendInstructions(_ context.Context, handle sessionhost.Handle, text string) error {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("subprocess: unknown session %q", handle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, text+"\n")
	return err
}

// ListSessions returns every handle currently tracked.
func (h *Host) ListSessions(_ context.Context) ([]sessionhost.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sessionhost.Handle, 0, len(h.sessions))
	for handle := range h.sessions {
		out = append(out, handle)
	}
	return out, nil
}

const gracefulTimeout = 5 * time.Second

// TerminateSession sends a shutdown message, waits up to 5s, then kills
// the process (§4.E.5's two-phase contract).
func (h *Host) TerminateSession(_ context.Context, handle sessionhost.Handle, reason string) error {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	delete(h.sessions, handle)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("subprocess: unknown session %q", handle)
	}

	s.mu.Lock()
	_, _ = io.WriteString(s.stdin, fmt.Sprintf(`{"type":"shutdown","reason":%q}`+"\n", reason))
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.cmd.Wait() //nolint:errcheck // exit status irrelevant once we only need completion
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracefulTimeout):
		s.cancel()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	}
	return nil
}

// ReadOutput returns the session's line channel.
func (h *Host) ReadOutput(_ context.Context, handle sessionhost.Handle) (<-chan string, error) {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("subprocess: unknown session %q", handle)
	}
	return s.lines, nil
}
