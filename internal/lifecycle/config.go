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

// Package lifecycle implements the Agent Lifecycle Manager (§4.E): the
// registry of declared agents, the deterministic selection algorithm,
// session creation and two-phase termination, the health-check loop, and
// per-agent performance tracking.
package lifecycle

import (
	"fmt"

	"github.com/relaymesh/conductor/internal/sessionhost"
)

// Role names a class of work a task or an agent handles, e.g. "coder",
// "reviewer", "tester". The set is open: deployments declare their own
// roles in AgentConfig files.
type Role string

// Capabilities is the bitmap-equivalent of what a backend can do, used by
// guideline requirement checks and future selection refinements.
type Capabilities struct {
	ToolsSupported     bool
	ImagesSupported    bool
	SubAgentsSupported bool
	ParallelSupported  bool
	CodeExecution      bool
	FSAccess           bool
	NetAccess          bool
	ContextWindow      int
	SupportedModels    []string
	SupportedFileTypes []string
}

// TokenLimits bounds an agent's token spend over rolling windows.
type TokenLimits struct {
	Daily   int
	Weekly  int
	Monthly int
}

// AgentConfig is the declarative description of one worker agent (§3),
// loaded from an on-disk config file and never mutated at runtime.
type AgentConfig struct {
	ID           string
	Role         Role   // the agent's primary/default role
	BestRole     Role   // the role this agent is best suited for (+5 in selection)
	Kind         sessionhost.VendorKind
	Roles        []Role // every role this agent can handle
	RunCommand   []string
	TokenLimits  TokenLimits
	Capabilities Capabilities
}

// HandlesRole reports whether cfg declares role among its handlable roles.
func (cfg AgentConfig) HandlesRole(role Role) bool {
	for _, r := range cfg.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate enforces §7's ConfigurationInvalid checks: an agent with no run
// command can never be spawned, and one with no handlable roles can never
// be selected.
func (cfg AgentConfig) Validate() error {
	if cfg.ID == "" {
		return fmt.Errorf("%w: agent config missing id", ErrConfigurationInvalid)
	}
	if len(cfg.RunCommand) == 0 {
		return fmt.Errorf("%w: agent %q has no run command", ErrConfigurationInvalid, cfg.ID)
	}
	if len(cfg.Roles) == 0 {
		return fmt.Errorf("%w: agent %q declares no handlable roles", ErrConfigurationInvalid, cfg.ID)
	}
	return nil
}
