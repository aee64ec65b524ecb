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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// SnapshotStore persists war-room archive entries to a single-file sqlite
// database, zstd-compressed, as the optional snapshot the spec permits in
// place of unbounded in-memory retention (§1 non-goals). It supplements the
// spec's left-undefined archive read-back behavior (§9): archived items
// written here can be read back by section and time, which the original
// source never did.
type SnapshotStore struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenSnapshotStore opens (creating if absent) the sqlite file at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("warroom: open snapshot store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS warroom_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section TEXT NOT NULL,
		archived_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("warroom: init schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("warroom: init compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("warroom: init decompressor: %w", err)
	}
	return &SnapshotStore{db: db, encoder: enc, decoder: dec}, nil
}

// SaveArchive appends each item as its own compressed row.
func (s *SnapshotStore) SaveArchive(items []ArchivedItem) error {
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("warroom: marshal archived item: %w", err)
		}
		compressed := s.encoder.EncodeAll(raw, nil)
		if _, err := s.db.Exec(
			`INSERT INTO warroom_archive (section, archived_at, payload) VALUES (?, ?, ?)`,
			string(item.Section), item.ArchivedAt.Unix(), compressed,
		); err != nil {
			return fmt.Errorf("warroom: insert archived item: %w", err)
		}
	}
	return nil
}

// LoadArchive returns every archived item for section recorded at or after
// since.
func (s *SnapshotStore) LoadArchive(section Section, since time.Time) ([]ArchivedItem, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM warroom_archive WHERE section = ? AND archived_at >= ? ORDER BY id ASC`,
		string(section), since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("warroom: query archive: %w", err)
	}
	defer rows.Close()

	var out []ArchivedItem
	for rows.Next() {
		var compressed []byte
		if err := rows.Scan(&compressed); err != nil {
			return nil, fmt.Errorf("warroom: scan archive row: %w", err)
		}
		raw, err := s.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("warroom: decompress archive row: %w", err)
		}
		var item ArchivedItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("warroom: unmarshal archive row: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
