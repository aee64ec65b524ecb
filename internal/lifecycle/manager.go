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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/conductor/internal/agentipc"
	"github.com/relaymesh/conductor/internal/bus"
	"github.com/relaymesh/conductor/internal/csync"
	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/logstream"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultResponseTimeout  = 60 * time.Second
	defaultReadyTimeout     = 30 * time.Second
	defaultHealthInterval   = 30 * time.Second
	defaultUnresponsiveAge  = 120 * time.Second
	defaultUnresponsiveMax  = 3
	defaultTerminationGrace = 5 * time.Second
)

// EventKind distinguishes Lifecycle Manager notification events.
type EventKind string

const (
	EventSessionCreated    EventKind = "session:created"
	EventSessionTerminated EventKind = "session:terminated"
	EventSessionError      EventKind = "session:error"
	EventTaskDispatched    EventKind = "task:dispatched"
	EventTaskCompleted     EventKind = "task:completed"
	EventTaskFailed        EventKind = "task:failed"
)

// Event reports a Lifecycle Manager state transition (§9: explicit
// event-bus value replacing the source's inheritance-based emitter).
type Event struct {
	Kind      EventKind
	AgentID   string
	SessionID string
	Err       string
}

// Manager owns the declared AgentConfigs, their runtime AgentSessions, and
// the selection/dispatch/health-check/termination machinery of §4.E.
type Manager struct {
	host      sessionhost.Host
	responses *bus.Bus[logstream.SessionResponse]
	workDir   string

	configs  *csync.Map[string, AgentConfig]
	sessions *csync.Map[string, *AgentSession] // keyed by AgentID
	pending  *csync.Map[string, chan agentipc.Response] // keyed by SessionID

	createMu sync.Mutex

	Events *bus.Bus[Event]

	responseTimeout  time.Duration
	readyTimeout     time.Duration
	healthInterval   time.Duration
	unresponsiveAge  time.Duration
	unresponsiveMax  int
	terminationGrace time.Duration

	engine *cron.Cron
}

// New creates a Manager bound to host. workDir is the base directory under
// which each agent gets its own session working directory. responses is
// the Log Streamer's IPC-response bus (logstream.Streamer.Responses);
// passing nil disables response correlation, useful only for tests that
// dispatch no tasks.
func New(host sessionhost.Host, responses *bus.Bus[logstream.SessionResponse], workDir string) *Manager {
	return &Manager{
		host:             host,
		responses:        responses,
		workDir:          workDir,
		configs:          csync.NewMap[string, AgentConfig](),
		sessions:         csync.NewMap[string, *AgentSession](),
		pending:          csync.NewMap[string, chan agentipc.Response](),
		Events:           bus.New[Event]("lifecycle"),
		responseTimeout:  defaultResponseTimeout,
		readyTimeout:     defaultReadyTimeout,
		healthInterval:   defaultHealthInterval,
		unresponsiveAge:  defaultUnresponsiveAge,
		unresponsiveMax:  defaultUnresponsiveMax,
		terminationGrace: defaultTerminationGrace,
		engine:           cron.New(),
	}
}

// RegisterAgent validates and stores cfg, replacing any prior config with
// the same id (the hot-reload path relies on this to apply edits in
// place without touching a running session).
func (m *Manager) RegisterAgent(cfg AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.configs.Set(cfg.ID, cfg)
	return nil
}

// UnregisterAgent removes a declared agent. It does not terminate any
// running session for it; callers should Terminate first if needed.
func (m *Manager) UnregisterAgent(id string) {
	m.configs.Delete(id)
}

// Agents returns every currently declared AgentConfig.
func (m *Manager) Agents() []AgentConfig {
	return m.configs.Values()
}

// Session returns the runtime session for agentID, if one exists.
func (m *Manager) Session(agentID string) (*AgentSession, bool) {
	return m.sessions.Get(agentID)
}

// ActiveSessionCount returns the number of agents with a live session,
// the Orchestrator Core's `activeAgents` input to the Token Distributor
// (§4.F, §4.I.3).
func (m *Manager) ActiveSessionCount() int {
	return m.sessions.Len()
}

// Start begins the health-check loop and, if a responses bus was
// configured, the response/liveness consumer. It does not block.
func (m *Manager) Start(ctx context.Context) error {
	if m.responses != nil {
		go m.consumeResponses(ctx)
	}
	_, err := m.engine.AddFunc(fmt.Sprintf("@every %s", m.healthInterval), func() {
		m.healthCheck(ctx)
	})
	if err != nil {
		return fmt.Errorf("lifecycle: schedule health check: %w", err)
	}
	m.engine.Start()
	return nil
}

// Stop halts the health-check loop. Running sessions are left as-is.
func (m *Manager) Stop() {
	m.engine.Stop()
}

func (m *Manager) consumeResponses(ctx context.Context) {
	ch, unsubscribe := m.responses.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			m.dispatchResponse(evt.Payload)
		}
	}
}

func (m *Manager) dispatchResponse(sr logstream.SessionResponse) {
	for _, session := range m.sessions.Values() {
		if session.SessionID != sr.SessionID {
			continue
		}
		session.touch()
		if pendingCh, ok := m.pending.Get(session.SessionID); ok {
			select {
			case pendingCh <- sr.Response:
			default:
			}
		}
		return
	}
}

// score implements the §4.E selection algorithm for one candidate.
// Eligibility is score > 0.
func score(cfg AgentConfig, session *AgentSession, taskType Role) int {
	if !cfg.HandlesRole(taskType) {
		return 0
	}
	total := 10
	if cfg.BestRole != "" && taskType == cfg.BestRole {
		total += 5
	}
	if cfg.TokenLimits.Daily > 0 {
		used := 0
		if session != nil {
			used = session.TokenUsage().Total
		}
		if cfg.TokenLimits.Daily-used > 1000 {
			total += 3
		}
	} else {
		total += 3
	}
	if session == nil || session.Status() == StatusIdle {
		total += 2
	}
	return total
}

// selectAgent picks the highest-scoring eligible config for taskType,
// breaking ties by earliest session lastActivity (an agent with no
// session yet sorts first, via the zero time.Time).
func (m *Manager) selectAgent(taskType Role) (AgentConfig, *AgentSession, bool) {
	var (
		best      AgentConfig
		bestSess  *AgentSession
		bestScore int
		found     bool
	)
	for _, cfg := range m.configs.Values() {
		session, _ := m.sessions.Get(cfg.ID)
		s := score(cfg, session, taskType)
		if s <= 0 {
			continue
		}
		if !found || s > bestScore {
			best, bestSess, bestScore, found = cfg, session, s, true
			continue
		}
		if s == bestScore {
			var curLast, candLast time.Time
			if bestSess != nil {
				curLast = bestSess.LastActivity()
			}
			if session != nil {
				candLast = session.LastActivity()
			}
			if candLast.Before(curLast) {
				best, bestSess = cfg, session
			}
		}
	}
	return best, bestSess, found
}

// ExecuteTask runs the full §4.E.2 dispatch: select an agent, acquire or
// create its session, send the task, and await its one-line JSON
// response (or timeout/cancellation).
func (m *Manager) ExecuteTask(ctx context.Context, task AgentTask) (AgentTask, error) {
	cfg, _, ok := m.selectAgent(task.Type)
	if !ok {
		return task, ErrNoSuitableAgent
	}

	session, err := m.acquireSession(ctx, cfg)
	if err != nil {
		return task, err
	}

	started := time.Now()
	task.Status = TaskInProgress
	task.StartedAt = &started
	if !session.beginTask(&task) {
		return task, ErrSessionBusy
	}
	m.Events.Publish(bus.Created(Event{Kind: EventTaskDispatched, AgentID: cfg.ID, SessionID: session.SessionID}))

	wire := agentipc.Task{
		Type:        agentipc.MessageTask,
		ID:          task.ID,
		Description: task.Description,
		Payload:     task.Payload,
		Priority:    task.Priority,
		Timestamp:   time.Now().Unix(),
	}
	line, err := wire.Marshal()
	if err != nil {
		session.finishTask(false, 0, nil)
		return task, fmt.Errorf("lifecycle: marshal task: %w", err)
	}

	respCh := make(chan agentipc.Response, 1)
	m.pending.Set(session.SessionID, respCh)
	defer m.pending.Delete(session.SessionID)

	if err := m.host.SendInstructions(ctx, session.Handle, line); err != nil {
		session.finishTask(false, 0, nil)
		return task, fmt.Errorf("lifecycle: send task: %w", err)
	}

	select {
	case <-ctx.Done():
		session.finishTask(false, time.Since(started).Milliseconds(), nil)
		return task, ErrCancelled
	case <-time.After(m.responseTimeout):
		session.finishTask(false, time.Since(started).Milliseconds(), nil)
		m.Events.Publish(bus.Created(Event{Kind: EventTaskFailed, AgentID: cfg.ID, SessionID: session.SessionID, Err: ErrAgentResponseTimeout.Error()}))
		return task, ErrAgentResponseTimeout
	case resp := <-respCh:
		durationMs := resp.DurationMs
		if durationMs == 0 {
			durationMs = time.Since(started).Milliseconds()
		}
		completed := time.Now()
		task.CompletedAt = &completed
		task.Result = resp.Data
		success := resp.Success != nil && *resp.Success
		if success {
			task.Status = TaskCompleted
		} else {
			task.Status = TaskFailed
			task.Error = resp.Error
		}

		var usage *TokenUsage
		if resp.TokenUsage != nil {
			usage = &TokenUsage{Total: resp.TokenUsage.Total, Cost: resp.TokenUsage.Cost, LastUpdated: completed}
			task.TokenUsage = usage
		}
		session.finishTask(success, durationMs, usage)

		kind := EventTaskCompleted
		if !success {
			kind = EventTaskFailed
		}
		m.Events.Publish(bus.Created(Event{Kind: kind, AgentID: cfg.ID, SessionID: session.SessionID, Err: task.Error}))
		return task, nil
	}
}

// acquireSession returns cfg's existing session, creating a fresh one if
// none exists yet (§4.E.3).
func (m *Manager) acquireSession(ctx context.Context, cfg AgentConfig) (*AgentSession, error) {
	if existing, ok := m.sessions.Get(cfg.ID); ok {
		return existing, nil
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()
	if existing, ok := m.sessions.Get(cfg.ID); ok {
		return existing, nil
	}

	dir := filepath.Join(m.workDir, cfg.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lifecycle: create working dir for %s: %w", cfg.ID, err)
	}

	if cfg.Kind != "" {
		if _, err := sessionhost.MaterializeVendorConfig(cfg.Kind, filepath.Join(dir, "vendor.json")); err != nil {
			return nil, fmt.Errorf("lifecycle: materialize vendor config for %s: %w", cfg.ID, err)
		}
	}

	hostCfg := sessionhost.Config{RunCommand: cfg.RunCommand, Cwd: dir}
	handle, err := m.host.CreateSession(ctx, cfg.ID, hostCfg, fmt.Sprintf("agent %s starting", cfg.ID))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create session for %s: %w", cfg.ID, err)
	}

	session := newAgentSession(uuid.NewString(), cfg.ID, handle)
	if err := m.awaitReady(ctx, handle); err != nil {
		return nil, err
	}
	session.setStatus(StatusIdle)

	m.sessions.Set(cfg.ID, session)
	m.Events.Publish(bus.Created(Event{Kind: EventSessionCreated, AgentID: cfg.ID, SessionID: session.SessionID}))
	return session, nil
}

// awaitReady polls the Session Host until handle is reported alive, up to
// readyTimeout. This is the only liveness contract the abstract Session
// Host offers pre-dispatch; a richer startup handshake is out of scope
// (§9 leaves agent startup confirmation implementation-defined).
func (m *Manager) awaitReady(ctx context.Context, handle sessionhost.Handle) error {
	deadline := time.Now().Add(m.readyTimeout)
	const pollInterval = 200 * time.Millisecond
	for {
		handles, err := m.host.ListSessions(ctx)
		if err == nil {
			for _, h := range handles {
				if h == handle {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return ErrAgentNotReady
		}
		select {
		case <-ctx.Done():
			return ErrCancelled
		case <-time.After(pollInterval):
		}
	}
}

// Terminate ends agentID's session via the Session Host's two-phase
// contract (§4.E.5) and drops the manager's bookkeeping for it.
func (m *Manager) Terminate(ctx context.Context, agentID, reason string) error {
	session, ok := m.sessions.Get(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	err := m.host.TerminateSession(ctx, session.Handle, reason)
	m.sessions.Delete(agentID)
	m.Events.Publish(bus.Created(Event{Kind: EventSessionTerminated, AgentID: agentID, SessionID: session.SessionID, Err: errString(err)}))
	return err
}

// healthCheck implements §4.E.4: sessions idle longer than unresponsiveAge
// get a liveness ping; three consecutive unresponsive ticks mark the
// session errored and remove it.
func (m *Manager) healthCheck(ctx context.Context) {
	now := time.Now()
	for agentID, session := range m.sessionsSnapshot() {
		if session.Status() == StatusBusy {
			continue
		}
		if now.Sub(session.LastActivity()) <= m.unresponsiveAge {
			continue
		}

		session.mu.Lock()
		session.unresponsiveStrikes++
		strikes := session.unresponsiveStrikes
		session.mu.Unlock()

		if strikes >= m.unresponsiveMax {
			log.Warn("lifecycle: session unresponsive, removing",
				zap.String("agent", agentID), zap.String("session", session.SessionID))
			_ = m.host.TerminateSession(ctx, session.Handle, "unresponsive")
			m.sessions.Delete(agentID)
			m.Events.Publish(bus.Created(Event{Kind: EventSessionError, AgentID: agentID, SessionID: session.SessionID, Err: "unresponsive"}))
			continue
		}

		ping := agentipc.Task{Type: agentipc.MessagePing, Timestamp: now.Unix()}
		line, err := ping.Marshal()
		if err != nil {
			continue
		}
		if err := m.host.SendInstructions(ctx, session.Handle, line); err != nil {
			log.Warn("lifecycle: ping failed", zap.String("agent", agentID), zap.Error(err))
		}
	}
}

func (m *Manager) sessionsSnapshot() map[string]*AgentSession {
	out := make(map[string]*AgentSession, m.sessions.Len())
	for _, agentID := range m.sessions.Keys() {
		if session, ok := m.sessions.Get(agentID); ok {
			out[agentID] = session
		}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
