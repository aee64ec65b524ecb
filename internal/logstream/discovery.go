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
	"strings"
	"sync"
	"time"

	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Discoverer runs the §4.C auto-discovery loop: every MonitorInterval it
// enumerates the Session Host, starts streaming unknown "agent-like"
// sessions, and stops streams for sessions that disappeared.
type Discoverer struct {
	streamer *Streamer
	host     sessionhost.Host
	cfg      Config

	engine *cron.Cron
	mu     sync.Mutex
	entry  cron.EntryID
}

// NewDiscoverer creates a discoverer for streamer against host.
func NewDiscoverer(streamer *Streamer, host sessionhost.Host, cfg Config) *Discoverer {
	return &Discoverer{streamer: streamer, host: host, cfg: cfg, engine: cron.New()}
}

// agentLike reports whether a session handle's name matches one of the
// configured agent-name markers (§4.C).
func agentLike(handle sessionhost.Handle, markers []string) bool {
	name := string(handle)
	for _, marker := range markers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Start schedules the discovery tick and begins running it immediately.
func (d *Discoverer) Start(ctx context.Context) error {
	if !d.cfg.AutoDiscovery {
		return nil
	}
	interval := d.cfg.MonitorInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	entryID, err := d.engine.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		d.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("logstream: schedule discovery tick: %w", err)
	}
	d.entry = entryID
	d.engine.Start()
	go d.tick(ctx)
	return nil
}

// Stop halts the discovery loop without affecting any stream already
// started.
func (d *Discoverer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.Stop()
}

func (d *Discoverer) tick(ctx context.Context) {
	handles, err := d.host.ListSessions(ctx)
	if err != nil {
		log.Warn("logstream: discovery: list sessions failed", zap.Error(err))
		return
	}

	live := make(map[string]bool, len(handles))
	for _, handle := range handles {
		if !agentLike(handle, d.cfg.AgentNameMarkers) {
			continue
		}
		sessionID := string(handle)
		live[sessionID] = true
		if _, known := d.streamer.Stream(sessionID); known {
			continue
		}
		if err := d.streamer.StartStream(ctx, sessionID, agentIDFromHandle(handle), handle); err != nil {
			log.Warn("logstream: discovery: start stream failed",
				zap.String("session", sessionID), zap.Error(err))
		}
	}

	for _, sessionID := range d.streamer.Sessions() {
		if !live[sessionID] {
			d.streamer.Forget(sessionID)
		}
	}
}

// agentIDFromHandle derives an agent id label from a session handle when
// no richer binding is available (discovery only sees the Session Host's
// own naming, not the Lifecycle Manager's AgentConfig).
func agentIDFromHandle(handle sessionhost.Handle) string {
	name := string(handle)
	if idx := strings.LastIndex(name, "-"); idx >= 0 {
		return name[:idx]
	}
	return name
}
