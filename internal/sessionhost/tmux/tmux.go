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

// Package tmux is the terminal-multiplexer-backed Session Host (§4.D),
// recommended for live UX. It shells out to the tmux binary; tmux itself
// stays an external, abstract dependency (§1 non-goal) -- this package
// only drives it through its CLI.
package tmux

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/relaymesh/conductor/internal/sessionhost"
)

const pollInterval = 200 * time.Millisecond

type session struct {
	paneName string
	cancel   context.CancelFunc
	lines    chan string
}

// Host implements sessionhost.Host by driving tmux new-session, send-keys,
// capture-pane, and kill-session.
type Host struct {
	mu       sync.Mutex
	sessions map[sessionhost.Handle]*session
	nextID   int
	binary   string
}

// New creates a host that invokes the named tmux binary ("tmux" if empty).
func New(binary string) *Host {
	if binary == "" {
		binary = "tmux"
	}
	return &Host{sessions: make(map[sessionhost.Handle]*session), binary: binary}
}

var _ sessionhost.Host = (*Host)(nil)

func (h *Host) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, h.binary, args...)
	return cmd.Output()
}

func (h *Host) newHandle() sessionhost.Handle {
	h.nextID++
	return sessionhost.Handle(fmt.Sprintf("tmux-%d", h.nextID))
}

// CreateSession runs `tmux new-session -d -s <pane> cfg.RunCommand...`,
// then sends instructions via send-keys.
func (h *Host) CreateSession(ctx context.Context, agentID string, cfg sessionhost.Config, instructions string) (sessionhost.Handle, error) {
	if len(cfg.RunCommand) == 0 {
		return "", fmt.Errorf("tmux: empty run command for agent %q", agentID)
	}

	h.mu.Lock()
	handle := h.newHandle()
	paneName := fmt.Sprintf("agent-%s-%d", agentID, h.nextID)
	h.mu.Unlock()

	args := []string{"new-session", "-d", "-s", paneName}
	if cfg.Cwd != "" {
		args = append(args, "-c", cfg.Cwd)
	}
	args = append(args, cfg.RunCommand...)
	if _, err := h.run(ctx, args...); err != nil {
		return "", fmt.Errorf("tmux: new-session %q: %w", paneName, err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s := &session{paneName: paneName, cancel: cancel, lines: make(chan string, 256)}
	go h.pollPane(pollCtx, s)

	h.mu.Lock()
	h.sessions[handle] = s
	h.mu.Unlock()

	if instructions != "" {
		if err := h.SendInstructions(ctx, handle, instructions); err != nil {
			return handle, err
		}
	}
	return handle, nil
}

// pollPane repeatedly captures the pane's scrollback tail, stripping ANSI
// codes, and forwards newly-seen lines. tmux has no native "tail -f" for
// capture-pane, so polling is the only portable option.
func (h *Host) pollPane(ctx context.Context, s *session) {
	defer close(s.lines)
	seen := 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out, err := h.run(ctx, "capture-pane", "-p", "-t", s.paneName)
			if err != nil {
				return
			}
			plain := ansi.Strip(string(out))
			scanner := bufio.NewScanner(strings.NewReader(plain))
			var all []string
			for scanner.Scan() {
				all = append(all, scanner.Text())
			}
			if len(all) <= seen {
				continue
			}
			for _, line := range all[seen:] {
				select {
				case s.lines <- line:
				case <-ctx.Done():
					return
				}
			}
			seen = len(all)
		}
	}
}

// SendInstructions runs `tmux send-keys -t <pane> text Enter`.
func (h *Host) SendInstructions(ctx context.Context, handle sessionhost.Handle, text string) error {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("tmux: unknown session %q", handle)
	}
	_, err := h.run(ctx, "send-keys", "-t", s.paneName, text, "Enter")
	return err
}

// ListSessions returns every tracked handle.
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

// TerminateSession sends a shutdown line, waits up to 5s for the pane to
// disappear on its own, then force kill-sessions it.
func (h *Host) TerminateSession(ctx context.Context, handle sessionhost.Handle, reason string) error {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	delete(h.sessions, handle)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("tmux: unknown session %q", handle)
	}

	_, _ = h.run(ctx, "send-keys", "-t", s.paneName, fmt.Sprintf(`{"type":"shutdown","reason":%q}`, reason), "Enter")

	deadline := time.After(gracefulTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			s.cancel()
			_, _ = h.run(ctx, "kill-session", "-t", s.paneName)
			return nil
		case <-ticker.C:
			if _, err := h.run(ctx, "has-session", "-t", s.paneName); err != nil {
				s.cancel()
				return nil
			}
		}
	}
}

// ReadOutput returns the session's polled, ANSI-stripped line channel.
func (h *Host) ReadOutput(_ context.Context, handle sessionhost.Handle) (<-chan string, error) {
	h.mu.Lock()
	s, ok := h.sessions[handle]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tmux: unknown session %q", handle)
	}
	return s.lines, nil
}
