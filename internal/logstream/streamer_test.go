package logstream

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/relaymesh/conductor/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal sessionhost.Host whose ReadOutput channel is
// driven directly by the test.
type fakeHost struct {
	lines chan string
}

func newFakeHost() *fakeHost { return &fakeHost{lines: make(chan string, 16)} }

func (f *fakeHost) CreateSession(context.Context, string, sessionhost.Config, string) (sessionhost.Handle, error) {
	return sessionhost.Handle("fake-1"), nil
}
func (f *fakeHost) SendInstructions(context.Context, sessionhost.Handle, string) error { return nil }
func (f *fakeHost) ListSessions(context.Context) ([]sessionhost.Handle, error) {
	return []sessionhost.Handle{"fake-1"}, nil
}
func (f *fakeHost) TerminateSession(context.Context, sessionhost.Handle, string) error {
	close(f.lines)
	return nil
}
func (f *fakeHost) ReadOutput(context.Context, sessionhost.Handle) (<-chan string, error) {
	return f.lines, nil
}

var _ sessionhost.Host = (*fakeHost)(nil)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DrainGrace = 10 * time.Millisecond
	return cfg
}

func TestStreamerDetectsSignalAndPublishesToAgentLogsChannel(t *testing.T) {
	host := newFakeHost()
	streamer := New(host, signal.DefaultCatalog, testConfig())

	ch, unsubscribe := streamer.Signals.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, streamer.StartStream(ctx, "s1", "a1", "fake-1"))
	host.lines <- "PRP-007 [bb] blocker: missing token"

	select {
	case evt := <-ch:
		sig := evt.Payload
		assert.Equal(t, signal.KindBuildBroken, sig.Kind)
		assert.Equal(t, "agent:a1", sig.Source)
		assert.GreaterOrEqual(t, sig.Priority, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for detected signal")
	}

	stream, ok := streamer.Stream("s1")
	require.True(t, ok)
	assert.Equal(t, 1, stream.Metrics().LineCount)
	assert.Equal(t, 1, stream.Metrics().SignalsDetected)
}

func TestStreamerRingBufferIsBoundedAndLineCountMonotone(t *testing.T) {
	host := newFakeHost()
	cfg := testConfig()
	cfg.BufferSize = 3
	streamer := New(host, signal.DefaultCatalog, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, streamer.StartStream(ctx, "s1", "a1", "fake-1"))

	for i := 0; i < 10; i++ {
		host.lines <- "just chatter"
	}
	require.Eventually(t, func() bool {
		s, _ := streamer.Stream("s1")
		return s.Metrics().LineCount == 10
	}, time.Second, 5*time.Millisecond)

	stream, _ := streamer.Stream("s1")
	assert.LessOrEqual(t, len(stream.Entries()), cfg.BufferSize)
	assert.Equal(t, 10, stream.Metrics().LineCount)
}

func TestStreamerStateTransitionsOnTeardown(t *testing.T) {
	host := newFakeHost()
	streamer := New(host, signal.DefaultCatalog, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, streamer.StartStream(ctx, "s1", "a1", "fake-1"))

	require.Eventually(t, func() bool {
		s, _ := streamer.Stream("s1")
		return s.State() == StateActive
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, streamer.StopStream(context.Background(), "s1", "fake-1", "test teardown"))

	require.Eventually(t, func() bool {
		s, _ := streamer.Stream("s1")
		return s.State() == StateStopped
	}, time.Second, 5*time.Millisecond)
}

func TestAgentLikePredicateMatchesConfiguredMarkers(t *testing.T) {
	markers := []string{"agent-", "worker-"}
	assert.True(t, agentLike(sessionhost.Handle("agent-coder-1"), markers))
	assert.True(t, agentLike(sessionhost.Handle("worker-reviewer-2"), markers))
	assert.False(t, agentLike(sessionhost.Handle("unrelated-pane"), markers))
}
