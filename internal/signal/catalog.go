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
package signal

import "sync"

// Resolution describes how a signal of a given kind is expected to be
// resolved: does it auto-resolve, does it require an explicit follow-on
// signal, or does it simply expire.
type Resolution string

const (
	ResolutionAuto     Resolution = "auto"
	ResolutionExplicit Resolution = "explicit"
	ResolutionExpires  Resolution = "expires"
)

// CatalogEntry describes the static properties of a signal kind.
type CatalogEntry struct {
	Priority   int
	Provenance Provenance
	Resolution Resolution
}

// Catalog maps signal kinds to their catalog entry. It is total over the
// kinds declared below but may be extended at runtime via Register, so
// lookups always go through Lookup rather than direct map indexing.
type Catalog struct {
	mu      sync.RWMutex
	entries map[Kind]CatalogEntry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[Kind]CatalogEntry)}
}

// Register adds or overwrites the entry for kind. Deployments use this to
// extend the catalog without recompiling.
func (c *Catalog) Register(kind Kind, entry CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = entry
}

// Lookup returns the entry for kind and whether it is registered.
func (c *Catalog) Lookup(kind Kind) (CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[kind]
	return entry, ok
}

// Priority bands, named per the defaults documented alongside the catalog.
const (
	PriorityFatal           = 10
	PriorityBuildBroken     = 9
	PriorityAttentionNeeded = 8
	PriorityTestFailure     = 7
	PriorityProgress        = 5
	PriorityInformational   = 3
)

// Declared kind tokens, per the two-letter grammar.
const (
	KindTaskProgress       Kind = "tp" // tp
	KindDependencyProgress Kind = "dp"
	KindTestWarning        Kind = "tw"
	KindBuildFailure       Kind = "bf"
	KindCodeQuality        Kind = "cq"
	KindTaskGap            Kind = "tg"
	KindCheckpoint         Kind = "cp"
	KindConfigFailure      Kind = "cf"
	KindReview             Kind = "rv"
	KindReviewApproval     Kind = "ra"
	KindReviewRejection    Kind = "rl"
	KindMerge              Kind = "mg"
	KindAgentAttention     Kind = "aa"
	KindOrchestratorAttn   Kind = "oa"
	KindInterChat          Kind = "ic"
	KindTestFailure        Kind = "ff"
	KindFatalFailure       Kind = "FF"
	KindBuildBroken        Kind = "bb"
	KindError              Kind = "er"
	KindTrace              Kind = "tr"
	KindResourceConstraint Kind = "rc"
	KindApprovalForward    Kind = "af"
	KindVerification       Kind = "vr"
	KindInvalidation       Kind = "iv"
	KindReport             Kind = "rp"
)

// DefaultCatalog is populated with every declared kind's default priority,
// provenance, and resolution mode.
var DefaultCatalog = buildDefaultCatalog()

func buildDefaultCatalog() *Catalog {
	c := NewCatalog()
	fatal := []Kind{KindFatalFailure}
	buildBroken := []Kind{KindBuildBroken}
	attention := []Kind{KindReview, KindOrchestratorAttn, KindApprovalForward, KindAgentAttention}
	testFailure := []Kind{KindTestFailure, KindBuildFailure, KindError}
	progress := []Kind{KindTaskProgress, KindDependencyProgress, KindCheckpoint, KindMerge, KindReviewApproval, KindReviewRejection}
	informational := []Kind{KindTestWarning, KindCodeQuality, KindTaskGap, KindConfigFailure, KindInterChat, KindTrace, KindResourceConstraint, KindVerification, KindInvalidation, KindReport}

	for _, k := range fatal {
		c.Register(k, CatalogEntry{Priority: PriorityFatal, Provenance: ProvenanceAgentLog, Resolution: ResolutionExplicit})
	}
	for _, k := range buildBroken {
		c.Register(k, CatalogEntry{Priority: PriorityBuildBroken, Provenance: ProvenanceAgentLog, Resolution: ResolutionAuto})
	}
	for _, k := range attention {
		c.Register(k, CatalogEntry{Priority: PriorityAttentionNeeded, Provenance: ProvenanceAgentLog, Resolution: ResolutionExplicit})
	}
	for _, k := range testFailure {
		c.Register(k, CatalogEntry{Priority: PriorityTestFailure, Provenance: ProvenanceAgentLog, Resolution: ResolutionAuto})
	}
	for _, k := range progress {
		c.Register(k, CatalogEntry{Priority: PriorityProgress, Provenance: ProvenanceAgentLog, Resolution: ResolutionAuto})
	}
	for _, k := range informational {
		c.Register(k, CatalogEntry{Priority: PriorityInformational, Provenance: ProvenanceScanner, Resolution: ResolutionExpires})
	}
	return c
}
