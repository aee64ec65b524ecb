package logstream

import (
	"testing"

	"github.com/relaymesh/conductor/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMatchesRegisteredSignalTokens(t *testing.T) {
	line := "PRP-007 [bb] blocker: missing token"
	dets := Detect(signal.DefaultCatalog, line)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, signal.KindBuildBroken, d.Kind)
	assert.GreaterOrEqual(t, d.Confidence, 0.9)
	assert.Contains(t, d.Context, "[bb] blocker")
}

func TestDetectIgnoresUnregisteredCodes(t *testing.T) {
	c := signal.NewCatalog()
	dets := Detect(c, "nothing registered here [zz]")
	assert.Empty(t, dets)
}

func TestDetectConfidenceCapsAtOne(t *testing.T) {
	line := "PRP-001 > [rv]: please review | thanks"
	dets := Detect(signal.DefaultCatalog, line)
	require.Len(t, dets, 1)
	assert.LessOrEqual(t, dets[0].Confidence, 1.0)
	assert.Equal(t, 1.0, dets[0].Confidence)
}

func TestDetectFindsMultipleTokensOnOneLine(t *testing.T) {
	dets := Detect(signal.DefaultCatalog, "[tp] working, also [er] noticed a transient issue")
	require.Len(t, dets, 2)
	assert.Equal(t, signal.KindTaskProgress, dets[0].Kind)
	assert.Equal(t, signal.KindError, dets[1].Kind)
}

func TestClassifyLevelDeterministicFirstMatchWins(t *testing.T) {
	assert.Equal(t, LevelCritical, ClassifyLevel("FATAL: unrecoverable error occurred"))
	assert.Equal(t, LevelError, ClassifyLevel("error: build step failed"))
	assert.Equal(t, LevelWarn, ClassifyLevel("warning: deprecated flag"))
	assert.Equal(t, LevelInfo, ClassifyLevel("info: starting up"))
	assert.Equal(t, LevelDebug, ClassifyLevel("just some chatter"))
}

func TestTruncateRespectsGraphemeClusters(t *testing.T) {
	// "é" here is a combining sequence (e + combining acute), one grapheme.
	s := "ééé"
	got := truncate(s, 2)
	assert.Equal(t, "éé", got)
}

func TestTruncateNoopWhenUnderLimit(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
}
