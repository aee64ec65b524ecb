package guidelines

import (
	"testing"

	"github.com/relaymesh/conductor/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGuideline(id string) Guideline {
	return Guideline{
		ID:       id,
		Category: "review",
		Priority: 5,
		Enabled:  true,
		Protocol: Protocol{
			Triggers: []signal.Kind{signal.KindReview},
			Steps:    []Step{{Name: "inspect", TypedOutputs: map[string]string{"verdict": "string"}}},
		},
		Prompts:     Prompts{Inspector: "inspect {{target}}", Orchestrator: "decide {{target}}"},
		TokenLimits: TokenLimits{Daily: 1000, Weekly: 5000, Monthly: 20000},
	}
}

func TestRegisterGuidelineRejectsMalformedID(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("Bad_ID")
	err := r.RegisterGuideline(g)
	assert.Error(t, err)
}

func TestRegisterGuidelineRejectsEmptyPrompts(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Prompts.Orchestrator = ""
	assert.Error(t, r.RegisterGuideline(g))
}

func TestRegisterGuidelineRejectsZeroStepList(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Protocol.Steps = nil
	assert.Error(t, r.RegisterGuideline(g))
}

func TestRegisterGuidelineRejectsNonPositiveTokenLimits(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.TokenLimits.Weekly = 0
	assert.Error(t, r.RegisterGuideline(g))
}

func TestRegisterGuidelineUnknownDependencyRejected(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Metadata.Dependencies = []string{"does-not-exist"}
	assert.Error(t, r.RegisterGuideline(g))
}

func TestUnregisterGuidelineRejectsWithActiveDependents(t *testing.T) {
	r := NewRegistry()
	base := validGuideline("base-review")
	require.NoError(t, r.RegisterGuideline(base))

	dependent := validGuideline("dependent-review")
	dependent.Metadata.Dependencies = []string{"base-review"}
	require.NoError(t, r.RegisterGuideline(dependent))

	err := r.UnregisterGuideline("base-review")
	assert.Error(t, err)

	require.NoError(t, r.UnregisterGuideline("dependent-review"))
	assert.NoError(t, r.UnregisterGuideline("base-review"))
}

func TestSetEnabledOnAlreadyEnabledGuidelineEmitsNoToggleEvent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGuideline(validGuideline("security-review")))

	ch, unsubscribe := r.Events.Subscribe()
	defer unsubscribe()

	require.NoError(t, r.SetEnabled("security-review", true))
	require.NoError(t, r.SetEnabled("security-review", true))

	toggles := 0
	drain(t, ch, func(evt RegistryEvent) {
		if evt.Kind == EventGuidelineToggled {
			toggles++
		}
	})
	assert.Equal(t, 0, toggles, "already-enabled guideline toggled to true again should not emit")
}

func TestSetEnabledEmitsOnActualChange(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Enabled = false
	require.NoError(t, r.RegisterGuideline(g))

	ch, unsubscribe := r.Events.Subscribe()
	defer unsubscribe()

	require.NoError(t, r.SetEnabled("security-review", true))
	require.NoError(t, r.SetEnabled("security-review", true))

	toggles := 0
	drain(t, ch, func(evt RegistryEvent) {
		if evt.Kind == EventGuidelineToggled {
			toggles++
		}
	})
	assert.Equal(t, 1, toggles)
}

func TestProcessSignalTriggersMatchingEnabledGuideline(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGuideline(validGuideline("security-review")))

	executions := r.ProcessSignal(signal.New(signal.KindReview))
	require.Len(t, executions, 1)
	assert.Equal(t, ExecutionPending, executions[0].Status)
}

func TestProcessSignalSkipsDisabledGuideline(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Enabled = false
	require.NoError(t, r.RegisterGuideline(g))

	executions := r.ProcessSignal(signal.New(signal.KindReview))
	assert.Empty(t, executions)
}

func TestProcessSignalUnmetRequirementProducesNoExecution(t *testing.T) {
	r := NewRegistry()
	g := validGuideline("security-review")
	g.Requirements = []Requirement{{Name: "GitHub API access", Kind: RequirementEnvVar, EnvVar: "GITHUB_TOKEN_TEST_UNSET_XYZ"}}
	require.NoError(t, r.RegisterGuideline(g))

	ch, unsubscribe := r.Events.Subscribe()
	defer unsubscribe()

	executions := r.ProcessSignal(signal.New(signal.KindVerification)) // wrong kind, won't even match; use Review instead below
	assert.Empty(t, executions)

	executions = r.ProcessSignal(signal.New(signal.KindReview))
	assert.Empty(t, executions)

	unmet := 0
	drain(t, ch, func(evt RegistryEvent) {
		if evt.Kind == EventRequirementUnsatisfied {
			unmet++
		}
	})
	assert.Equal(t, 1, unmet)
}

func drain[T any](t *testing.T, ch <-chan T, fn func(T)) {
	t.Helper()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return
			}
			fn(v)
		default:
			return
		}
	}
}
