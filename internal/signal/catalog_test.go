package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCatalogIsTotalOverDeclaredKinds(t *testing.T) {
	declared := []Kind{
		KindTaskProgress, KindDependencyProgress, KindTestWarning, KindBuildFailure,
		KindCodeQuality, KindTaskGap, KindCheckpoint, KindConfigFailure, KindReview,
		KindReviewApproval, KindReviewRejection, KindMerge, KindAgentAttention,
		KindOrchestratorAttn, KindInterChat, KindTestFailure, KindFatalFailure,
		KindBuildBroken, KindError, KindTrace, KindResourceConstraint,
		KindApprovalForward, KindVerification, KindInvalidation, KindReport,
	}
	for _, k := range declared {
		entry, ok := DefaultCatalog.Lookup(k)
		assert.Truef(t, ok, "kind %q missing from default catalog", k)
		assert.Greater(t, entry.Priority, 0)
	}
}

func TestCatalogRegisterExtendsWithoutRecompiling(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Lookup(Kind("xx"))
	assert.False(t, ok)

	c.Register(Kind("xx"), CatalogEntry{Priority: 4, Provenance: ProvenanceUser, Resolution: ResolutionExpires})
	entry, ok := c.Lookup(Kind("xx"))
	assert.True(t, ok)
	assert.Equal(t, 4, entry.Priority)
}

func TestCatalogRegisterOverwrites(t *testing.T) {
	c := NewCatalog()
	c.Register(KindTaskProgress, CatalogEntry{Priority: 1})
	c.Register(KindTaskProgress, CatalogEntry{Priority: 2})
	entry, _ := c.Lookup(KindTaskProgress)
	assert.Equal(t, 2, entry.Priority)
}

func TestFatalKindsOutrankEverythingElse(t *testing.T) {
	for _, tc := range []struct {
		kind Kind
		want int
	}{
		{KindFatalFailure, PriorityFatal},
		{KindBuildBroken, PriorityBuildBroken},
	} {
		entry, ok := DefaultCatalog.Lookup(tc.kind)
		assert.True(t, ok)
		assert.Equal(t, tc.want, entry.Priority)
	}
}
