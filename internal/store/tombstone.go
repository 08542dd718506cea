package store

import (
	"fmt"
	"time"

	"github.com/veslund/canon/internal/models"
)

// RecordTombstone appends a deletion record for a relation triple. The ledger
// is append-only; nothing in normal sync ever deletes from it.
func (t *Tx) RecordTombstone(ts models.Tombstone) error {
	_, err := t.tx.Exec(`INSERT INTO tombstones (relation_name, parent_id, child_id, deleted_at, deleted_by)
		VALUES (?, ?, ?, ?, ?)`,
		ts.RelationName, ts.ParentID, ts.ChildID, ts.DeletedAt.UnixNano(), ts.DeletedBy)
	if err != nil {
		return fmt.Errorf("store: record tombstone: %w", err)
	}
	return nil
}

// IsTombstoned reports whether the triple carries a tombstone at or after
// since. Relation creations during ingest call this with the source edit's
// timestamp: an equal or newer tombstone means the deletion wins and the
// creation must be suppressed.
func (t *Tx) IsTombstoned(name string, parent, child models.EntityID, since time.Time) (bool, error) {
	var n int
	err := t.tx.QueryRow(`SELECT count(*) FROM tombstones
		WHERE relation_name = ? AND parent_id = ? AND child_id = ? AND deleted_at >= ?`,
		name, parent, child, since.UnixNano()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: is tombstoned: %w", err)
	}
	return n > 0, nil
}

// Tombstones returns every ledger entry for a triple, newest first. Used by
// inspection surfaces, not by the ingest path.
func (s *Store) Tombstones(name string, parent, child models.EntityID) ([]models.Tombstone, error) {
	rows, err := s.conn.Query(`SELECT relation_name, parent_id, child_id, deleted_at, deleted_by
		FROM tombstones
		WHERE relation_name = ? AND parent_id = ? AND child_id = ?
		ORDER BY deleted_at DESC, id DESC`, name, parent, child)
	if err != nil {
		return nil, fmt.Errorf("store: tombstones: %w", err)
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var (
			ts    models.Tombstone
			nanos int64
		)
		if err := rows.Scan(&ts.RelationName, &ts.ParentID, &ts.ChildID, &nanos, &ts.DeletedBy); err != nil {
			return nil, fmt.Errorf("store: scan tombstone: %w", err)
		}
		ts.DeletedAt = time.Unix(0, nanos)
		out = append(out, ts)
	}
	return out, rows.Err()
}
