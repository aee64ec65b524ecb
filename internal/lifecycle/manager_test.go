package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/conductor/internal/agentipc"
	"github.com/relaymesh/conductor/internal/bus"
	"github.com/relaymesh/conductor/internal/logstream"
	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal sessionhost.Host for Lifecycle Manager tests. Each
// CreateSession call yields a handle named after agentID so tests can
// recognize which agent a session belongs to.
type fakeHost struct {
	created []string
	replyFn func(handle sessionhost.Handle, line string) *agentipc.Response
	respond *bus.Bus[logstream.SessionResponse]
	sessIDs map[sessionhost.Handle]string
}

func newFakeHost(respond *bus.Bus[logstream.SessionResponse]) *fakeHost {
	return &fakeHost{respond: respond, sessIDs: make(map[sessionhost.Handle]string)}
}

func (f *fakeHost) CreateSession(_ context.Context, agentID string, _ sessionhost.Config, _ string) (sessionhost.Handle, error) {
	handle := sessionhost.Handle("sess-" + agentID)
	f.created = append(f.created, agentID)
	return handle, nil
}

func (f *fakeHost) SendInstructions(_ context.Context, handle sessionhost.Handle, line string) error {
	if f.replyFn == nil || f.respond == nil {
		return nil
	}
	resp := f.replyFn(handle, line)
	if resp == nil {
		return nil
	}
	sessionID, ok := f.sessIDs[handle]
	if !ok {
		return nil
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.respond.Publish(bus.Created(logstream.SessionResponse{SessionID: sessionID, Response: *resp}))
	}()
	return nil
}

func (f *fakeHost) ListSessions(context.Context) ([]sessionhost.Handle, error) {
	handles := make([]sessionhost.Handle, 0, len(f.created))
	for _, agentID := range f.created {
		handles = append(handles, sessionhost.Handle("sess-"+agentID))
	}
	return handles, nil
}

func (f *fakeHost) TerminateSession(context.Context, sessionhost.Handle, string) error { return nil }

func (f *fakeHost) ReadOutput(context.Context, sessionhost.Handle) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

var _ sessionhost.Host = (*fakeHost)(nil)

func successResponse(data map[string]any) *agentipc.Response {
	ok := true
	return &agentipc.Response{Success: &ok, Data: data, DurationMs: 10}
}

func failureResponse(msg string) *agentipc.Response {
	ok := false
	return &agentipc.Response{Success: &ok, Error: msg}
}

func coderConfig(id string) AgentConfig {
	return AgentConfig{
		ID:          id,
		Role:        "coder",
		BestRole:    "coder",
		Kind:        "",
		Roles:       []Role{"coder"},
		RunCommand:  []string{"/bin/fake-agent"},
		TokenLimits: TokenLimits{Daily: 100000},
	}
}

func newManagerForTest(t *testing.T, replyFn func(sessionhost.Handle, string) *agentipc.Response) (*Manager, *fakeHost) {
	t.Helper()
	responses := bus.New[logstream.SessionResponse]("test-responses")
	host := newFakeHost(responses)
	host.replyFn = replyFn
	mgr := New(host, responses, t.TempDir())
	ctx := context.Background()
	require.NoError(t, mgr.Start(ctx))
	t.Cleanup(mgr.Stop)
	return mgr, host
}

// primeSession creates the session for cfg up front so the
// fakeHost's sessIDs map (which correlates a handle back to a sessionID
// for response delivery) is populated before ExecuteTask needs it.
func primeSession(t *testing.T, mgr *Manager, host *fakeHost, cfg AgentConfig) {
	t.Helper()
	require.NoError(t, mgr.RegisterAgent(cfg))
	session, err := mgr.acquireSession(context.Background(), cfg)
	require.NoError(t, err)
	host.sessIDs[session.Handle] = session.SessionID
}

func TestSelectAgentScoresByRoleBestRoleAndIdleness(t *testing.T) {
	mgr, _ := newManagerForTest(t, nil)
	generalist := AgentConfig{ID: "a1", Roles: []Role{"coder", "reviewer"}, RunCommand: []string{"x"}}
	specialist := AgentConfig{ID: "a2", Roles: []Role{"coder"}, BestRole: "coder", RunCommand: []string{"x"}}
	require.NoError(t, mgr.RegisterAgent(generalist))
	require.NoError(t, mgr.RegisterAgent(specialist))

	cfg, _, ok := mgr.selectAgent("coder")
	require.True(t, ok)
	assert.Equal(t, "a2", cfg.ID, "bestRole match should outscore a plain role match")
}

func TestSelectAgentReturnsNoSuitableAgentWhenNoneHandleRole(t *testing.T) {
	mgr, _ := newManagerForTest(t, nil)
	require.NoError(t, mgr.RegisterAgent(AgentConfig{ID: "a1", Roles: []Role{"reviewer"}, RunCommand: []string{"x"}}))

	_, _, ok := mgr.selectAgent("coder")
	assert.False(t, ok)
}

func TestExecuteTaskNoSuitableAgentWithEmptyRegistry(t *testing.T) {
	mgr, _ := newManagerForTest(t, nil)
	_, err := mgr.ExecuteTask(context.Background(), AgentTask{ID: "t1", Type: "coder"})
	assert.ErrorIs(t, err, ErrNoSuitableAgent)
}

func TestExecuteTaskHappyPathUpdatesPerformanceAndTokenUsage(t *testing.T) {
	mgr, host := newManagerForTest(t, func(sessionhost.Handle, string) *agentipc.Response {
		resp := successResponse(map[string]any{"summary": "done"})
		resp.TokenUsage = &agentipc.TokenUsage{Total: 42}
		return resp
	})
	cfg := coderConfig("a1")
	primeSession(t, mgr, host, cfg)

	task, err := mgr.ExecuteTask(context.Background(), AgentTask{ID: "t1", Type: "coder", Description: "do it"})
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, "done", task.Result["summary"])

	session, ok := mgr.Session("a1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, session.Status())
	assert.Equal(t, 1, session.Performance().TasksCompleted)
	assert.Equal(t, 1.0, session.Performance().SuccessRate)
	assert.Equal(t, 42, session.TokenUsage().Total)
}

func TestExecuteTaskFailureResponseMarksTaskFailedNotError(t *testing.T) {
	mgr, host := newManagerForTest(t, func(sessionhost.Handle, string) *agentipc.Response {
		return failureResponse("agent exploded")
	})
	cfg := coderConfig("a1")
	primeSession(t, mgr, host, cfg)

	task, err := mgr.ExecuteTask(context.Background(), AgentTask{ID: "t1", Type: "coder"})
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, task.Status)
	assert.Equal(t, "agent exploded", task.Error)

	session, _ := mgr.Session("a1")
	assert.Equal(t, 0.0, session.Performance().SuccessRate)
}

func TestExecuteTaskTimesOutWhenNoResponseArrives(t *testing.T) {
	mgr, host := newManagerForTest(t, nil) // replyFn nil: SendInstructions never replies
	mgr.responseTimeout = 20 * time.Millisecond
	cfg := coderConfig("a1")
	primeSession(t, mgr, host, cfg)

	_, err := mgr.ExecuteTask(context.Background(), AgentTask{ID: "t1", Type: "coder"})
	assert.ErrorIs(t, err, ErrAgentResponseTimeout)
}

func TestExecuteTaskRejectsAlreadyBusySession(t *testing.T) {
	mgr, host := newManagerForTest(t, nil)
	cfg := coderConfig("a1")
	primeSession(t, mgr, host, cfg)
	session, _ := mgr.Session("a1")
	session.beginTask(&AgentTask{ID: "in-flight"})

	_, err := mgr.ExecuteTask(context.Background(), AgentTask{ID: "t2", Type: "coder"})
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestHealthCheckRemovesSessionAfterThreeUnresponsiveTicks(t *testing.T) {
	mgr, host := newManagerForTest(t, nil)
	mgr.unresponsiveAge = 0
	cfg := coderConfig("a1")
	primeSession(t, mgr, host, cfg)

	ctx := context.Background()
	mgr.healthCheck(ctx)
	mgr.healthCheck(ctx)
	_, ok := mgr.Session("a1")
	require.True(t, ok, "session should survive fewer than 3 unresponsive ticks")

	mgr.healthCheck(ctx)
	_, ok = mgr.Session("a1")
	assert.False(t, ok, "session should be removed after 3 unresponsive ticks")
}

func TestAgentConfigValidateRejectsMissingRunCommandAndRoles(t *testing.T) {
	err := AgentConfig{ID: "a1"}.Validate()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)

	err = AgentConfig{ID: "a1", RunCommand: []string{"x"}}.Validate()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)

	err = AgentConfig{ID: "a1", RunCommand: []string{"x"}, Roles: []Role{"coder"}}.Validate()
	assert.NoError(t, err)
}
