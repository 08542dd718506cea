package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/veslund/canon/internal/models"
)

// GetSyncRecord returns the cached render state for a page, or nil when the
// page has never been committed.
func (s *Store) GetSyncRecord(path string) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	err := s.conn.QueryRow(`SELECT path, last_rendered_hash, last_synced_at FROM sync_records WHERE path = ?`, path).
		Scan(&rec.Path, &rec.LastRenderedHash, &rec.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sync record: %w", err)
	}
	return &rec, nil
}

// UpsertSyncRecord records the hash of a page's last rendered state.
func (s *Store) UpsertSyncRecord(rec models.SyncRecord) error {
	_, err := s.conn.Exec(`
		INSERT INTO sync_records (path, last_rendered_hash, last_synced_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			last_rendered_hash = excluded.last_rendered_hash,
			last_synced_at     = excluded.last_synced_at
	`, rec.Path, rec.LastRenderedHash, rec.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("store: upsert sync record: %w", err)
	}
	return nil
}

// DeleteSyncRecord drops the cache entry for a page. Safe at any time: sync
// records are derived data and their absence only forces an idempotent
// rewrite.
func (s *Store) DeleteSyncRecord(path string) error {
	_, err := s.conn.Exec(`DELETE FROM sync_records WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("store: delete sync record: %w", err)
	}
	return nil
}

// AllSyncRecords returns every cached page path and hash.
func (s *Store) AllSyncRecords() (map[string]string, error) {
	rows, err := s.conn.Query(`SELECT path, last_rendered_hash FROM sync_records`)
	if err != nil {
		return nil, fmt.Errorf("store: all sync records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}
