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

package guidelines

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/relaymesh/conductor/internal/bus"
	"github.com/relaymesh/conductor/internal/signal"
)

// RegistryEventKind names the events the registry emits onto its bus.
type RegistryEventKind string

const (
	EventGuidelineRegistered    RegistryEventKind = "guideline_registered"
	EventGuidelineUnregistered  RegistryEventKind = "guideline_unregistered"
	EventGuidelineToggled       RegistryEventKind = "guideline_toggled"
	EventGuidelineTriggered     RegistryEventKind = "guideline_triggered"
	EventRequirementUnsatisfied RegistryEventKind = "requirement_unsatisfied"
)

// RegistryEvent is published for every catalog or dispatch-level change.
type RegistryEvent struct {
	Kind        RegistryEventKind
	GuidelineID string
	Detail      string
}

// Registry is the catalog of guidelines keyed by id (§4.H).
type Registry struct {
	mu         sync.RWMutex
	catalog    map[string]*Guideline
	dependents map[string]map[string]bool // id -> set of guideline ids that declare it as a dependency
	executions map[string]*Execution

	Events *bus.Bus[RegistryEvent]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		catalog:    make(map[string]*Guideline),
		dependents: make(map[string]map[string]bool),
		executions: make(map[string]*Execution),
		Events:     bus.New[RegistryEvent]("guidelines"),
	}
}

// RegisterGuideline validates g (structure plus JSON-schema shape checks)
// and adds it to the catalog, recording its declared dependencies in the
// dependents graph.
func (r *Registry) RegisterGuideline(g Guideline) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := g.ValidateSchema(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dep := range g.Metadata.Dependencies {
		if _, ok := r.catalog[dep]; !ok {
			return &ValidationError{Guideline: g.ID, Reason: fmt.Sprintf("unknown dependency %q", dep)}
		}
	}

	copyG := g
	r.catalog[g.ID] = &copyG
	for _, dep := range g.Metadata.Dependencies {
		if r.dependents[dep] == nil {
			r.dependents[dep] = make(map[string]bool)
		}
		r.dependents[dep][g.ID] = true
	}

	r.Events.Publish(bus.Created(RegistryEvent{Kind: EventGuidelineRegistered, GuidelineID: g.ID}))
	return nil
}

// UnregisterGuideline removes id, rejecting the request if any other
// guideline declares id as a dependency.
func (r *Registry) UnregisterGuideline(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.catalog[id]; !ok {
		return fmt.Errorf("guidelines: %q is not registered", id)
	}
	if deps := r.dependents[id]; len(deps) > 0 {
		return fmt.Errorf("guidelines: %q has active dependents", id)
	}

	delete(r.catalog, id)
	for _, dep := range r.dependents {
		delete(dep, id)
	}
	r.Events.Publish(bus.Created(RegistryEvent{Kind: EventGuidelineUnregistered, GuidelineID: id}))
	return nil
}

// SetEnabled idempotently toggles id's enabled flag. A guideline_toggled
// event is emitted only when the flag actually changes.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	g, ok := r.catalog[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("guidelines: %q is not registered", id)
	}
	changed := g.Enabled != enabled
	g.Enabled = enabled
	r.mu.Unlock()

	if changed {
		r.Events.Publish(bus.Created(RegistryEvent{Kind: EventGuidelineToggled, GuidelineID: id}))
	}
	return nil
}

// Get returns a copy of the registered guideline, if present.
func (r *Registry) Get(id string) (Guideline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.catalog[id]
	if !ok {
		return Guideline{}, false
	}
	return *g, true
}

// requirementSatisfied checks a single declared requirement.
func requirementSatisfied(req Requirement) bool {
	switch req.Kind {
	case RequirementEnvVar:
		return os.Getenv(req.EnvVar) != ""
	default:
		return false
	}
}

// ProcessSignal creates an Execution for every enabled guideline whose
// protocol triggers include sig.Kind and whose requirements are all
// satisfied. Guidelines with unmet requirements produce no execution and
// instead emit requirement_unsatisfied.
func (r *Registry) ProcessSignal(sig signal.Signal) []*Execution {
	r.mu.RLock()
	var candidates []*Guideline
	for _, g := range r.catalog {
		if !g.Enabled {
			continue
		}
		for _, trigger := range g.Protocol.Triggers {
			if trigger == sig.Kind {
				candidates = append(candidates, g)
				break
			}
		}
	}
	r.mu.RUnlock()

	var created []*Execution
	for _, g := range candidates {
		var unmet []string
		for _, req := range g.Requirements {
			if !requirementSatisfied(req) {
				unmet = append(unmet, req.Name)
			}
		}
		if len(unmet) > 0 {
			r.Events.Publish(bus.Created(RegistryEvent{
				Kind:        EventRequirementUnsatisfied,
				GuidelineID: g.ID,
				Detail:      fmt.Sprintf("unmet: %v", unmet),
			}))
			continue
		}

		exec := newExecution(g.ID, sig.ID)
		r.mu.Lock()
		r.executions[exec.ID] = exec
		r.mu.Unlock()

		r.Events.Publish(bus.Created(RegistryEvent{Kind: EventGuidelineTriggered, GuidelineID: g.ID}))
		created = append(created, exec)
	}
	return created
}

// Execution looks up a created execution by id.
func (r *Registry) Execution(id string) (*Execution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executions[id]
	return e, ok
}

// newExecutionID is a seam the tests don't need to override; kept as a
// function for parity with how sessions/tasks mint ids elsewhere.
func newExecutionID() string { return uuid.NewString() }
