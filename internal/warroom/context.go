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

package warroom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/relaymesh/conductor/internal/log"
	"github.com/relaymesh/conductor/internal/tokenbudget"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// ContextSection is a versioned slice of shared context (§3).
type ContextSection struct {
	ID           string
	Content      string
	Priority     int
	Tokens       int
	Version      int
	LastUpdated  time.Time
	Tags         []string
	Dependencies []string
	Source       string
}

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// historyEntry is one retained prior version of a ContextSection.
type historyEntry struct {
	section  ContextSection
	checksum string
}

// ConflictKind names which field disagreed with the latest version at
// update time.
type ConflictKind string

const (
	ConflictNone     ConflictKind = "none"
	ConflictContent  ConflictKind = "content"
	ConflictPriority ConflictKind = "priority"
)

// Resolution is the caller's explicit choice for a content conflict.
type Resolution string

const (
	ResolveAccept Resolution = "accept" // take the incoming content
	ResolveReject Resolution = "reject" // keep the current content
	ResolveMerge  Resolution = "merge"  // concatenate current + incoming
)

// Update describes a requested change to a ContextSection. A nil Content
// means "no content change requested"; Delete requests removal instead.
type Update struct {
	Content      *string
	Priority     *int
	Tags         []string
	Dependencies []string
	Source       string
	Delete       bool
	Resolution   Resolution // required only when the update produces a content conflict
}

const mergeDelimiter = "\n---\n"

// ContextManager owns every versioned ContextSection, their bounded
// history, and subscriber callbacks.
type ContextManager struct {
	mu             sync.Mutex
	sections       map[string]*ContextSection
	history        map[string][]historyEntry
	historyLimit   int
	subs           map[string]map[int]func(ContextSection)
	nextSubID      int
	tokenThreshold int
}

// NewContextManager creates an empty manager. tokenThreshold of 0 disables
// the compaction trigger.
func NewContextManager(tokenThreshold int) *ContextManager {
	return &ContextManager{
		sections:       make(map[string]*ContextSection),
		history:        make(map[string][]historyEntry),
		subs:           make(map[string]map[int]func(ContextSection)),
		historyLimit:   defaultHistoryLimit,
		tokenThreshold: tokenThreshold,
	}
}

// UpdateContext creates, updates, or deletes the section named contextID.
// It returns the resulting section (zero value if deleted), any conflict
// that was detected, and an error if a content conflict required
// resolution but update.Resolution was unset.
func (cm *ContextManager) UpdateContext(contextID string, update Update) (ContextSection, ConflictKind, error) {
	cm.mu.Lock()

	current, exists := cm.sections[contextID]

	if update.Delete {
		if exists {
			cm.pushHistory(contextID, *current)
			delete(cm.sections, contextID)
		}
		cm.mu.Unlock()
		cm.notify(contextID, ContextSection{ID: contextID})
		return ContextSection{ID: contextID}, ConflictNone, nil
	}

	if !exists {
		next := ContextSection{
			ID:          contextID,
			Version:     1,
			LastUpdated: time.Now(),
			Source:      update.Source,
		}
		if update.Content != nil {
			next.Content = *update.Content
		}
		if update.Priority != nil {
			next.Priority = *update.Priority
		}
		next.Tags = update.Tags
		next.Dependencies = update.Dependencies
		next.Tokens = tokenbudget.GetCounter().CountTokens(next.Content)
		cm.sections[contextID] = &next
		cm.mu.Unlock()
		cm.notify(contextID, next)
		cm.maybeCompact()
		return next, ConflictNone, nil
	}

	conflict := ConflictNone
	next := *current
	next.Version = current.Version + 1
	next.LastUpdated = time.Now()
	if update.Source != "" {
		next.Source = update.Source
	}
	if update.Tags != nil {
		next.Tags = update.Tags
	}
	if update.Dependencies != nil {
		next.Dependencies = update.Dependencies
	}

	if update.Priority != nil && *update.Priority != current.Priority {
		conflict = ConflictPriority
		// Priority conflicts auto-merge: max wins.
		if *update.Priority > current.Priority {
			next.Priority = *update.Priority
		} else {
			next.Priority = current.Priority
		}
	}

	if update.Content != nil && *update.Content != current.Content {
		conflict = ConflictContent
		switch update.Resolution {
		case ResolveAccept:
			next.Content = *update.Content
		case ResolveReject:
			next.Content = current.Content
		case ResolveMerge:
			next.Content = current.Content + mergeDelimiter + *update.Content
		default:
			cm.mu.Unlock()
			return ContextSection{}, ConflictContent, fmt.Errorf("warroom: content conflict on %q requires an explicit resolution", contextID)
		}
	}
	next.Tokens = tokenbudget.GetCounter().CountTokens(next.Content)

	cm.pushHistory(contextID, *current)
	cm.sections[contextID] = &next
	cm.mu.Unlock()

	cm.notify(contextID, next)
	cm.maybeCompact()
	return next, conflict, nil
}

func (cm *ContextManager) pushHistory(contextID string, section ContextSection) {
	entries := append(cm.history[contextID], historyEntry{section: section, checksum: checksum(section.Content)})
	if len(entries) > cm.historyLimit {
		entries = entries[len(entries)-cm.historyLimit:]
	}
	cm.history[contextID] = entries
}

// RollbackContext replaces the current section with the historical
// version, bumping the version counter rather than reusing the old one
// (§4.G: rollback "bumps the version counter").
func (cm *ContextManager) RollbackContext(contextID string, version int) (ContextSection, error) {
	cm.mu.Lock()
	entries := cm.history[contextID]
	var found *ContextSection
	for _, e := range entries {
		if e.section.Version == version {
			s := e.section
			found = &s
			break
		}
	}
	current, exists := cm.sections[contextID]
	if found == nil {
		cm.mu.Unlock()
		return ContextSection{}, fmt.Errorf("warroom: no version %d retained for %q", version, contextID)
	}
	next := *found
	if exists {
		next.Version = current.Version + 1
		cm.pushHistory(contextID, *current)
	} else {
		next.Version = 1
	}
	next.LastUpdated = time.Now()
	cm.sections[contextID] = &next
	cm.mu.Unlock()

	cm.notify(contextID, next)
	return next, nil
}

// GetContext returns the current section, if any.
func (cm *ContextManager) GetContext(contextID string) (ContextSection, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	s, ok := cm.sections[contextID]
	if !ok {
		return ContextSection{}, false
	}
	return *s, true
}

// SubscribeToContextUpdates registers callback to be invoked with every
// applied update to contextID. A panic or any other failure inside
// callback is isolated and does not prevent other subscribers from being
// notified. The returned function cancels the subscription.
func (cm *ContextManager) SubscribeToContextUpdates(contextID string, callback func(ContextSection)) func() {
	cm.mu.Lock()
	if cm.subs[contextID] == nil {
		cm.subs[contextID] = make(map[int]func(ContextSection))
	}
	id := cm.nextSubID
	cm.nextSubID++
	cm.subs[contextID][id] = callback
	cm.mu.Unlock()

	return func() {
		cm.mu.Lock()
		delete(cm.subs[contextID], id)
		cm.mu.Unlock()
	}
}

func (cm *ContextManager) notify(contextID string, section ContextSection) {
	cm.mu.Lock()
	callbacks := make([]func(ContextSection), 0, len(cm.subs[contextID]))
	for _, cb := range cm.subs[contextID] {
		callbacks = append(callbacks, cb)
	}
	cm.mu.Unlock()

	for _, cb := range callbacks {
		cm.safeInvoke(cb, section)
	}
}

func (cm *ContextManager) safeInvoke(cb func(ContextSection), section ContextSection) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("warroom: subscriber callback panicked", zap.Any("recovered", r))
		}
	}()
	cb(section)
}

// maybeCompact runs a compaction pass when the sum of estimated tokens
// across current sections and their retained history exceeds
// tokenThreshold: it truncates older history entries' content and keeps
// only the most recent historyLimit/2 of them.
func (cm *ContextManager) maybeCompact() {
	if cm.tokenThreshold <= 0 {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	total := 0
	for _, s := range cm.sections {
		total += s.Tokens
	}
	counter := tokenbudget.GetCounter()
	for _, entries := range cm.history {
		for _, e := range entries {
			total += counter.CountTokens(e.section.Content)
		}
	}
	if total <= cm.tokenThreshold {
		return
	}

	tail := cm.historyLimit / 2
	if tail < 1 {
		tail = 1
	}
	for id, entries := range cm.history {
		if len(entries) <= tail {
			continue
		}
		trimmed := entries[len(entries)-tail:]
		for i := range trimmed {
			if len(trimmed[i].section.Content) > 256 {
				trimmed[i].section.Content = trimmed[i].section.Content[:256]
			}
		}
		cm.history[id] = trimmed
	}
}
