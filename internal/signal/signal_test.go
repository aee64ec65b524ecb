package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsCatalogPriority(t *testing.T) {
	s := New(KindFatalFailure, WithSource("agent-1"))
	assert.Equal(t, PriorityFatal, s.Priority)
	assert.Equal(t, StateActive, s.State)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Timestamp.IsZero())
}

func TestNewPriorityOverride(t *testing.T) {
	s := New(KindTaskProgress, WithPriority(9))
	assert.Equal(t, 9, s.Priority)
}

func TestNewUnknownKindHasZeroPriority(t *testing.T) {
	s := New(Kind("zz"))
	assert.Equal(t, 0, s.Priority)
}

func TestResolvePreservesOriginal(t *testing.T) {
	original := New(KindReview, WithSource("reviewer"))
	resolved := Resolve(original)

	require.Equal(t, StateActive, original.State, "original must remain unmutated")
	assert.Equal(t, StateResolved, resolved.State)
	assert.Equal(t, original.ID, resolved.ReplyTo)
	assert.NotEqual(t, original.ID, resolved.ID)
	assert.Equal(t, original.Priority, resolved.Priority)
}

func TestExpire(t *testing.T) {
	original := New(KindTestWarning)
	expired := Expire(original)
	assert.Equal(t, StateExpired, expired.State)
	assert.Equal(t, original.ID, expired.ReplyTo)
}

func TestNewTransition(t *testing.T) {
	parent := New(KindReview, WithSource("reviewer-a"))
	approval := NewTransition(parent, KindReviewApproval, map[string]any{"approved": true})

	assert.Equal(t, parent.ID, approval.ReplyTo)
	assert.Equal(t, parent.Source, approval.Source)
	assert.Equal(t, PriorityProgress, approval.Priority)
	assert.Equal(t, true, approval.Payload["approved"])
}
