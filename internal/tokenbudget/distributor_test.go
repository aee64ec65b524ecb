package tokenbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateWithinWindowNeedsNoCompression(t *testing.T) {
	d := Allocate(1, 1_000_000, ComplexityLow)
	assert.Nil(t, d.Compaction)
	assert.LessOrEqual(t, d.Total(), 1_000_000)
	assert.Equal(t, 1_000_000, d.Total())
	assert.Greater(t, d.SafetyBuffer, 0)
}

func TestAllocateIsDeterministic(t *testing.T) {
	a := Allocate(4, 200_000, ComplexityMedium)
	b := Allocate(4, 200_000, ComplexityMedium)
	assert.Equal(t, a, b)
}

func TestAllocateCompressionScenario(t *testing.T) {
	// End-to-end scenario from the spec: activeAgents=10, complexity=high,
	// modelWindow=200000.
	d := Allocate(10, 200_000, ComplexityHigh)

	require.NotNil(t, d.Compaction)
	assert.LessOrEqual(t, d.Total(), 200_000)
	assert.GreaterOrEqual(t, d.SafetyBuffer, 0)

	assert.Equal(t, FixedInspectorOutput, d.InspectorOutput)
	assert.Equal(t, FixedAgentsManifest, d.AgentsManifest)

	// No compressible slot may fall below 30% of its pre-compression value.
	pre := Distribution{
		PRPContent:    int(float64(baseAgentPRPContent) * ComplexityHigh.multiplier()),
		SharedWarzone: baseWarzonePerAgent * 10,
		UserMessages:  int(float64(baseUserMessages) * userMessagesMultiplier(10)),
		ToolCalls:     int(float64(baseToolCallsPerAgent) * 10 * ComplexityHigh.multiplier()),
		CotReasoning:  ComplexityHigh.cotReasoningTokens(),
	}
	for _, slot := range compressionOrder {
		assert.GreaterOrEqualf(t, float64(d.get(slot)), float64(pre.get(slot))*0.3,
			"slot %s reduced below 30%% floor", slot)
	}
}

func TestAllocateComplexityScalesElasticSlots(t *testing.T) {
	low := Allocate(2, 10_000_000, ComplexityLow)
	high := Allocate(2, 10_000_000, ComplexityHigh)

	assert.Less(t, low.PRPContent, high.PRPContent)
	assert.Less(t, low.CotReasoning, high.CotReasoning)
	assert.Less(t, low.ToolCalls, high.ToolCalls)
}

func TestAllocateUserMessagesCapsAtFiveAgents(t *testing.T) {
	five := Allocate(5, 10_000_000, ComplexityMedium)
	ten := Allocate(10, 10_000_000, ComplexityMedium)
	assert.Equal(t, five.UserMessages, ten.UserMessages, "multiplier caps at x2.0 for 5+ agents")
}

func TestAllocateNoActiveAgentsHasZeroPerAgentSlots(t *testing.T) {
	d := Allocate(0, 1_000_000, ComplexityMedium)
	assert.Equal(t, 0, d.SharedWarzone)
	assert.Equal(t, 0, d.ToolCalls)
}
