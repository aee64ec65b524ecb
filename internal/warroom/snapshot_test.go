package warroom

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warroom.db")
	store, err := OpenSnapshotStore(path)
	require.NoError(t, err)
	defer store.Close()

	before := time.Now().Add(-time.Minute)
	items := []ArchivedItem{
		{Section: SectionBlockers, Item: Item{Text: "stuck", InsertedAt: before}, ArchivedAt: time.Now()},
	}
	require.NoError(t, store.SaveArchive(items))

	loaded, err := store.LoadArchive(SectionBlockers, before)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "stuck", loaded[0].Item.Text)
}
