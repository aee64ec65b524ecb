package subprocess

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/conductor/internal/sessionhost"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionEchoesInstructionsBack(t *testing.T) {
	h := New()
	ctx := context.Background()

	handle, err := h.CreateSession(ctx, "agent-1", sessionhost.Config{
		RunCommand: []string{"sh", "-c", "cat"},
	}, "hello")
	require.NoError(t, err)

	out, err := h.ReadOutput(ctx, handle)
	require.NoError(t, err)

	select {
	case line := <-out:
		require.Equal(t, "hello", line)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed line")
	}

	require.NoError(t, h.TerminateSession(ctx, handle, "test complete"))
}

func TestListSessionsTracksActiveHandles(t *testing.T) {
	h := New()
	ctx := context.Background()

	handle, err := h.CreateSession(ctx, "agent-1", sessionhost.Config{RunCommand: []string{"sh", "-c", "cat"}}, "")
	require.NoError(t, err)

	sessions, err := h.ListSessions(ctx)
	require.NoError(t, err)
	require.Contains(t, sessions, handle)

	require.NoError(t, h.TerminateSession(ctx, handle, "done"))
	sessions, err = h.ListSessions(ctx)
	require.NoError(t, err)
	require.NotContains(t, sessions, handle)
}

func TestSendInstructionsUnknownSessionErrors(t *testing.T) {
	h := New()
	err := h.SendInstructions(context.Background(), "bogus", "hi")
	require.Error(t, err)
}
