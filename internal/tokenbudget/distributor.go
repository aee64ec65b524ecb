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

package tokenbudget

// Complexity classifies a pending signal by payload size and the number of
// correlated prior signals observed in the last 60s (§4.F).
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) multiplier() float64 {
	switch c {
	case ComplexityLow:
		return 0.7
	case ComplexityHigh:
		return 1.5
	default:
		return 1.0
	}
}

func (c Complexity) cotReasoningTokens() int {
	switch c {
	case ComplexityLow:
		return 5000
	case ComplexityHigh:
		return 20000
	default:
		return 10000
	}
}

// Fixed slot sizes (§3).
const (
	FixedInspectorOutput = 40000
	FixedAgentsManifest  = 20000
)

// Baselines for elastic slots before scaling.
const (
	baseAgentPRPContent   = 30000
	baseWarzonePerAgent   = 10000
	baseUserMessages      = 20000
	baseToolCallsPerAgent = 5000
)

// SlotName identifies a compressible elastic slot, used both for the
// compression order and for reporting per-slot deltas.
type SlotName string

const (
	SlotUserMessages  SlotName = "userMessages"
	SlotPRPContent    SlotName = "prpContent"
	SlotSharedWarzone SlotName = "sharedWarzone"
	SlotCotReasoning  SlotName = "cotReasoning"
	SlotToolCalls     SlotName = "toolCalls"
)

// compressionOrder is the fixed iteration order from §4.F.
var compressionOrder = []SlotName{
	SlotUserMessages, SlotPRPContent, SlotSharedWarzone, SlotCotReasoning, SlotToolCalls,
}

// maxReductionFraction is the 70%-of-current-allocation cap on any single
// slot's reduction (equivalently, no slot drops below 30% of its
// pre-compression value, the invariant in §8).
const maxReductionFraction = 0.7

// Distribution is the result of an allocation, fixed and elastic slots
// named individually so callers can read off exactly what each prompt
// section received.
type Distribution struct {
	InspectorOutput int
	AgentsManifest  int
	PRPContent      int
	SharedWarzone   int
	UserMessages    int
	ToolCalls       int
	CotReasoning    int
	SafetyBuffer    int

	// Compaction records whether compression ran, and by how much each
	// slot was reduced, for the compaction_applied event.
	Compaction *Compaction
}

// Compaction describes a compression pass's effect.
type Compaction struct {
	Deltas map[SlotName]int // positive: tokens removed from that slot
}

// Total sums every slot including SafetyBuffer.
func (d Distribution) Total() int {
	return d.InspectorOutput + d.AgentsManifest + d.PRPContent + d.SharedWarzone +
		d.UserMessages + d.ToolCalls + d.CotReasoning + d.SafetyBuffer
}

func (d Distribution) get(name SlotName) int {
	switch name {
	case SlotUserMessages:
		return d.UserMessages
	case SlotPRPContent:
		return d.PRPContent
	case SlotSharedWarzone:
		return d.SharedWarzone
	case SlotCotReasoning:
		return d.CotReasoning
	case SlotToolCalls:
		return d.ToolCalls
	default:
		return 0
	}
}

func (d *Distribution) set(name SlotName, value int) {
	switch name {
	case SlotUserMessages:
		d.UserMessages = value
	case SlotPRPContent:
		d.PRPContent = value
	case SlotSharedWarzone:
		d.SharedWarzone = value
	case SlotCotReasoning:
		d.CotReasoning = value
	case SlotToolCalls:
		d.ToolCalls = value
	}
}

// userMessagesMultiplier scales up to x2.0 at 5+ active agents (§4.F).
func userMessagesMultiplier(activeAgents int) float64 {
	if activeAgents <= 1 {
		return 1.0
	}
	m := 1.0 + 0.25*float64(activeAgents-1)
	if m > 2.0 {
		m = 2.0
	}
	return m
}

// Allocate computes the token distribution for one orchestrator invocation.
// It is a pure function of its inputs: identical arguments always produce
// an identical Distribution (§4.F determinism invariant).
func Allocate(activeAgents int, modelWindow int, complexity Complexity) Distribution {
	if activeAgents < 0 {
		activeAgents = 0
	}
	mult := complexity.multiplier()

	d := Distribution{
		InspectorOutput: FixedInspectorOutput,
		AgentsManifest:  FixedAgentsManifest,
		PRPContent:      int(float64(baseAgentPRPContent) * mult),
		SharedWarzone:   baseWarzonePerAgent * activeAgents,
		UserMessages:    int(float64(baseUserMessages) * userMessagesMultiplier(activeAgents)),
		ToolCalls:       int(float64(baseToolCallsPerAgent) * float64(activeAgents) * mult),
		CotReasoning:    complexity.cotReasoningTokens(),
	}

	total := d.InspectorOutput + d.AgentsManifest + d.PRPContent + d.SharedWarzone +
		d.UserMessages + d.ToolCalls + d.CotReasoning

	if total <= modelWindow {
		d.SafetyBuffer = modelWindow - total
		return d
	}

	overflow := total - modelWindow
	deltas := make(map[SlotName]int)
	for _, slot := range compressionOrder {
		if overflow <= 0 {
			break
		}
		current := d.get(slot)
		maxReduction := int(float64(current) * maxReductionFraction)
		reduction := overflow
		if reduction > maxReduction {
			reduction = maxReduction
		}
		if reduction <= 0 {
			continue
		}
		d.set(slot, current-reduction)
		deltas[slot] = reduction
		overflow -= reduction
	}

	newTotal := d.InspectorOutput + d.AgentsManifest + d.PRPContent + d.SharedWarzone +
		d.UserMessages + d.ToolCalls + d.CotReasoning
	if newTotal < modelWindow {
		d.SafetyBuffer = modelWindow - newTotal
	} else {
		d.SafetyBuffer = 0
	}
	d.Compaction = &Compaction{Deltas: deltas}
	return d
}
