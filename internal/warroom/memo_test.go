package warroom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToWarRoomEvictsOldestOnOverflow(t *testing.T) {
	m := NewMemo(2)
	m.AddToWarRoom(SectionNext, "a")
	m.AddToWarRoom(SectionNext, "b")
	evicted := m.AddToWarRoom(SectionNext, "c")

	require.NotNil(t, evicted)
	assert.Equal(t, "a", evicted.Item.Text)

	snap := m.GetWarRoomStatus()
	require.Len(t, snap.Sections[SectionNext], 2)
	assert.Equal(t, "b", snap.Sections[SectionNext][0].Text)
	assert.Equal(t, "c", snap.Sections[SectionNext][1].Text)
}

func TestMoveInWarRoomTransitionsScenario(t *testing.T) {
	m := NewMemo(50)
	m.AddToWarRoom(SectionNext, "X")
	m.AddToWarRoom(SectionNext, "Y")

	assert.True(t, m.MoveInWarRoom(SectionNext, SectionDoing, "X"))
	assert.True(t, m.MoveInWarRoom(SectionDoing, SectionDone, "X"))

	snap := m.GetWarRoomStatus()
	assert.Len(t, snap.Sections[SectionDone], 1)
	assert.Equal(t, "X", snap.Sections[SectionDone][0].Text)
	assert.Empty(t, snap.Sections[SectionDoing])
	assert.Len(t, snap.Sections[SectionNext], 1)
	assert.Equal(t, "Y", snap.Sections[SectionNext][0].Text)
	assert.Equal(t, 2, snap.TotalItems)
}

func TestMoveInWarRoomAbsentItemReturnsFalseAndMutatesNothing(t *testing.T) {
	m := NewMemo(50)
	m.AddToWarRoom(SectionNext, "Y")

	before := m.GetWarRoomStatus()
	ok := m.MoveInWarRoom(SectionNext, SectionDoing, "missing")
	after := m.GetWarRoomStatus()

	assert.False(t, ok)
	assert.Equal(t, before.Sections, after.Sections)
}

func TestArchiveWarRoomItemsRemovesEverythingAtZeroDays(t *testing.T) {
	m := NewMemo(50)
	m.AddToWarRoom(SectionDone, "X")
	m.AddToWarRoom(SectionNext, "Y")

	removed := m.ArchiveWarRoomItems(0)
	assert.Equal(t, 2, removed)

	snap := m.GetWarRoomStatus()
	assert.Equal(t, 0, snap.TotalItems)
}

func TestArchiveWarRoomItemsKeepsItemsYoungerThanCutoff(t *testing.T) {
	m := NewMemo(50)
	m.AddToWarRoom(SectionNotes, "fresh")

	removed := m.ArchiveWarRoomItems(30)
	assert.Equal(t, 0, removed)
	assert.Len(t, m.GetWarRoomStatus().Sections[SectionNotes], 1)
}

func TestArchivedItemsQueryable(t *testing.T) {
	m := NewMemo(50)
	before := time.Now()
	m.AddToWarRoom(SectionBlockers, "stuck")
	m.ArchiveWarRoomItems(0)

	items := m.ArchivedItems(SectionBlockers, before)
	require.Len(t, items, 1)
	assert.Equal(t, "stuck", items[0].Item.Text)
}

func TestGetWarRoomStatusReturnsIndependentCopy(t *testing.T) {
	m := NewMemo(50)
	m.AddToWarRoom(SectionNotes, "a")

	snap := m.GetWarRoomStatus()
	snap.Sections[SectionNotes][0].Text = "mutated"

	fresh := m.GetWarRoomStatus()
	assert.Equal(t, "a", fresh.Sections[SectionNotes][0].Text)
}
