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

// Package guidelines maps incoming signals to declarative workflow
// templates ("guidelines") and tracks the outcome of every execution they
// trigger.
package guidelines

import (
	"regexp"

	"github.com/relaymesh/conductor/internal/signal"
)

// RequirementKind names a gated check a guideline can declare.
type RequirementKind string

// RequirementEnvVar is currently the only supported requirement kind: it
// passes when the named environment variable is set and non-empty.
const RequirementEnvVar RequirementKind = "env_var"

// Requirement is a single named gated check (§4.H, e.g. "GitHub API
// access").
type Requirement struct {
	Name   string          `yaml:"name" json:"name"`
	Kind   RequirementKind `yaml:"kind" json:"kind"`
	EnvVar string          `yaml:"envVar,omitempty" json:"envVar,omitempty"`
}

// Step is one protocol step: a typed output contract plus the decision
// points and fallbacks the orchestrator consults while running it.
type Step struct {
	Name            string            `yaml:"name" json:"name"`
	TypedOutputs    map[string]string `yaml:"typedOutputs,omitempty" json:"typedOutputs,omitempty"`
	DecisionPoints  []string          `yaml:"decisionPoints,omitempty" json:"decisionPoints,omitempty"`
	SuccessCriteria []string          `yaml:"successCriteria,omitempty" json:"successCriteria,omitempty"`
	FallbackActions []string          `yaml:"fallbackActions,omitempty" json:"fallbackActions,omitempty"`
}

// Protocol is the declarative workflow body: which signal kinds trigger
// it, and the ordered steps it runs.
type Protocol struct {
	Triggers []signal.Kind `yaml:"triggers" json:"triggers"`
	Steps    []Step        `yaml:"steps" json:"steps"`
}

// Prompts carries the inspector/orchestrator prompt templates, which use
// {{placeholder}} substitution filled in by the caller at dispatch time.
type Prompts struct {
	Inspector    string `yaml:"inspector" json:"inspector"`
	Orchestrator string `yaml:"orchestrator" json:"orchestrator"`
}

// TokenLimits bounds the budget a guideline's executions may consume.
type TokenLimits struct {
	Daily   int `yaml:"daily" json:"daily"`
	Weekly  int `yaml:"weekly" json:"weekly"`
	Monthly int `yaml:"monthly" json:"monthly"`
}

// Metadata carries cross-guideline relationships.
type Metadata struct {
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Guideline is a declarative workflow template triggered by signals (§3).
type Guideline struct {
	ID           string        `yaml:"id" json:"id"`
	Category     string        `yaml:"category" json:"category"`
	Priority     int           `yaml:"priority" json:"priority"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Protocol     Protocol      `yaml:"protocol" json:"protocol"`
	Requirements []Requirement `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Prompts      Prompts       `yaml:"prompts" json:"prompts"`
	TokenLimits  TokenLimits   `yaml:"tokenLimits" json:"tokenLimits"`
	Tools        []string      `yaml:"tools,omitempty" json:"tools,omitempty"`
	Metadata     Metadata      `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Validate checks the structural invariants §4.H requires before a
// guideline may be registered: a well-formed id, at least one protocol
// step, non-empty prompts, and positive token limits.
func (g Guideline) Validate() error {
	if !idPattern.MatchString(g.ID) {
		return &ValidationError{Guideline: g.ID, Reason: "id must match ^[a-z][a-z0-9-]*$"}
	}
	if len(g.Protocol.Steps) == 0 {
		return &ValidationError{Guideline: g.ID, Reason: "protocol must declare at least one step"}
	}
	if g.Prompts.Inspector == "" || g.Prompts.Orchestrator == "" {
		return &ValidationError{Guideline: g.ID, Reason: "both inspector and orchestrator prompts are required"}
	}
	if g.TokenLimits.Daily <= 0 || g.TokenLimits.Weekly <= 0 || g.TokenLimits.Monthly <= 0 {
		return &ValidationError{Guideline: g.ID, Reason: "tokenLimits must be positive"}
	}
	return nil
}

// ValidationError reports why RegisterGuideline rejected a definition.
type ValidationError struct {
	Guideline string
	Reason    string
}

func (e *ValidationError) Error() string {
	return "guidelines: " + e.Guideline + ": " + e.Reason
}
