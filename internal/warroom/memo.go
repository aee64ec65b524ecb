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

// Package warroom implements the shared five-section memo and the
// versioned context-section store that back the orchestrator's notion of
// "what's going on right now".
package warroom

import (
	"sync"
	"time"

	"github.com/relaymesh/conductor/internal/bus"
)

// Section is one of the five fixed war-room lists.
type Section string

const (
	SectionDone     Section = "done"
	SectionDoing    Section = "doing"
	SectionNext     Section = "next"
	SectionBlockers Section = "blockers"
	SectionNotes    Section = "notes"
)

// Sections enumerates the five war-room sections in display order.
var Sections = []Section{SectionDone, SectionDoing, SectionNext, SectionBlockers, SectionNotes}

const defaultMaxItems = 50

// Item is a single war-room entry.
type Item struct {
	Text       string
	InsertedAt time.Time
}

// ArchivedItem is an Item evicted from a Memo, either by FIFO overflow or
// by an age sweep.
type ArchivedItem struct {
	Section    Section
	Item       Item
	ArchivedAt time.Time
}

// EventKind distinguishes war-room notification events.
type EventKind string

const (
	EventUpdated  EventKind = "warRoom_updated"
	EventArchived EventKind = "warRoom_archived"
)

// MemoEvent is published on a Memo's event bus for every mutation.
type MemoEvent struct {
	Kind    EventKind
	Section Section
	Item    Item
	Count   int
}

// Memo is the bounded five-section memo (§3, §4.G).
type Memo struct {
	mu       sync.Mutex
	maxItems int

	sections map[Section][]Item
	archive  []ArchivedItem

	lastAction  string
	lastUpdated time.Time

	Events *bus.Bus[MemoEvent]
}

// NewMemo creates an empty memo bounded to maxItems per section (the §3
// default of 50 is used when maxItems <= 0).
func NewMemo(maxItems int) *Memo {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	sections := make(map[Section][]Item, len(Sections))
	for _, s := range Sections {
		sections[s] = nil
	}
	return &Memo{
		maxItems: maxItems,
		sections: sections,
		Events:   bus.New[MemoEvent]("warroom"),
	}
}

func (m *Memo) touch(action string) {
	m.lastAction = action
	m.lastUpdated = time.Now()
}

// AddToWarRoom enqueues text into section. If the section now exceeds
// maxItems, the oldest entry is evicted into the archive. Returns the
// evicted item, if any.
func (m *Memo) AddToWarRoom(section Section, text string) (evicted *ArchivedItem) {
	m.mu.Lock()
	item := Item{Text: text, InsertedAt: time.Now()}
	m.sections[section] = append(m.sections[section], item)

	if len(m.sections[section]) > m.maxItems {
		old := m.sections[section][0]
		m.sections[section] = m.sections[section][1:]
		archived := ArchivedItem{Section: section, Item: old, ArchivedAt: time.Now()}
		m.archive = append(m.archive, archived)
		evicted = &archived
	}
	m.touch("add:" + string(section))
	m.mu.Unlock()

	m.Events.Publish(bus.Updated(MemoEvent{Kind: EventUpdated, Section: section, Item: item}))
	return evicted
}

// MoveInWarRoom atomically relocates the first item matching text from
// fromSection to toSection. Returns false, mutating nothing, if no such
// item is present.
func (m *Memo) MoveInWarRoom(fromSection, toSection Section, text string) bool {
	m.mu.Lock()
	items := m.sections[fromSection]
	idx := -1
	for i, it := range items {
		if it.Text == text {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return false
	}
	moved := items[idx]
	m.sections[fromSection] = append(items[:idx:idx], items[idx+1:]...)
	m.sections[toSection] = append(m.sections[toSection], moved)
	m.touch("move:" + string(fromSection) + "->" + string(toSection))
	m.mu.Unlock()

	m.Events.Publish(bus.Updated(MemoEvent{Kind: EventUpdated, Section: toSection, Item: moved}))
	return true
}

// ArchiveWarRoomItems sweeps every section for entries inserted more than
// olderThanDays ago, moves them to the archive, and returns the count
// removed.
func (m *Memo) ArchiveWarRoomItems(olderThanDays int) int {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	m.mu.Lock()
	removed := 0
	for _, section := range Sections {
		items := m.sections[section]
		kept := items[:0:0]
		for _, it := range items {
			if it.InsertedAt.Before(cutoff) {
				m.archive = append(m.archive, ArchivedItem{Section: section, Item: it, ArchivedAt: time.Now()})
				removed++
				continue
			}
			kept = append(kept, it)
		}
		m.sections[section] = kept
	}
	m.touch("archive")
	m.mu.Unlock()

	if removed > 0 {
		m.Events.Publish(bus.Created(MemoEvent{Kind: EventArchived, Count: removed}))
	}
	return removed
}

// Snapshot is a read-only copy of the memo's full state.
type Snapshot struct {
	Sections    map[Section][]Item
	TotalItems  int
	LastAction  string
	LastUpdated time.Time
	MaxItems    int
}

// GetWarRoomStatus returns a deep copy of the memo's current state.
func (m *Memo) GetWarRoomStatus() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Section][]Item, len(m.sections))
	total := 0
	for s, items := range m.sections {
		cp := make([]Item, len(items))
		copy(cp, items)
		out[s] = cp
		total += len(cp)
	}
	return Snapshot{
		Sections:    out,
		TotalItems:  total,
		LastAction:  m.lastAction,
		LastUpdated: m.lastUpdated,
		MaxItems:    m.maxItems,
	}
}

// ArchivedItems returns archive entries for section archived at or after
// since, supplementing the spec's left-undefined archive read-back
// behavior (§9 open question) by making evicted items queryable rather
// than write-only.
func (m *Memo) ArchivedItems(section Section, since time.Time) []ArchivedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ArchivedItem
	for _, a := range m.archive {
		if a.Section == section && !a.ArchivedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out
}
