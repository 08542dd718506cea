package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/models"
)

const entityColumns = `id, category, slug, display_name, attrs, deleted_at, created_at, updated_at`

func scanEntity(row interface{ Scan(...any) error }) (*models.Entity, error) {
	var (
		e         models.Entity
		attrsJSON string
		deletedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.Category, &e.Slug, &e.DisplayName, &attrsJSON, &deletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	if attrsJSON != "" && attrsJSON != "{}" {
		if err := json.Unmarshal([]byte(attrsJSON), &e.Attrs); err != nil {
			return nil, fmt.Errorf("store: decode attrs: %w", err)
		}
	}
	return &e, nil
}

// GetEntity returns the entity with the given id, soft-deleted or not.
func (s *Store) GetEntity(id models.EntityID) (*models.Entity, error) {
	row := s.conn.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: entity %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entity: %w", err)
	}
	return e, nil
}

// GetEntityBySlug returns the live entity with the given slug.
func (s *Store) GetEntityBySlug(slugged string) (*models.Entity, error) {
	row := s.conn.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE slug = ? AND deleted_at IS NULL`, slugged)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: entity %q: %w", slugged, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entity by slug: %w", err)
	}
	return e, nil
}

// AllEntities returns every entity, including soft-deleted ones; the resolver
// snapshot filters those itself.
func (s *Store) AllEntities() ([]models.Entity, error) {
	rows, err := s.conn.Query(`SELECT ` + entityColumns + ` FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: all entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListEntities returns the live entities of one category ordered by display
// name, then slug, so generated index output is deterministic.
func (s *Store) ListEntities(c models.Category) ([]models.Entity, error) {
	rows, err := s.conn.Query(`SELECT `+entityColumns+` FROM entities
		WHERE category = ? AND deleted_at IS NULL
		ORDER BY display_name, slug`, c)
	if err != nil {
		return nil, fmt.Errorf("store: list entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// SoftDeleteEntity marks an entity deleted without removing its rows.
func (s *Store) SoftDeleteEntity(id models.EntityID) error {
	res, err := s.conn.Exec(`UPDATE entities SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now(), time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: soft delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: entity %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// CreateEntity inserts a new live entity and returns its id.
func (s *Store) CreateEntity(c models.Category, slugged, displayName string, attrs map[string]any) (models.EntityID, error) {
	var id models.EntityID
	err := s.InTx(func(tx *Tx) error {
		var err error
		id, _, err = tx.EnsureEntity(c, slugged, displayName, attrs)
		return err
	})
	return id, err
}

// EnsureEntity upserts an entity by slug inside the page transaction and
// reports whether it was created.
func (t *Tx) EnsureEntity(c models.Category, slugged, displayName string, attrs map[string]any) (models.EntityID, bool, error) {
	attrsJSON, err := encodeAttrs(attrs)
	if err != nil {
		return 0, false, err
	}

	var id models.EntityID
	err = t.tx.QueryRow(`SELECT id FROM entities WHERE slug = ? AND deleted_at IS NULL`, slugged).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := t.tx.Exec(`INSERT INTO entities (category, slug, display_name, attrs) VALUES (?, ?, ?, ?)`,
			c, slugged, displayName, attrsJSON)
		if err != nil {
			return 0, false, fmt.Errorf("store: create entity: %w", err)
		}
		raw, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("store: create entity id: %w", err)
		}
		return models.EntityID(raw), true, nil
	case err != nil:
		return 0, false, fmt.Errorf("store: ensure entity: %w", err)
	}

	_, err = t.tx.Exec(`UPDATE entities SET display_name = ?, attrs = ?, updated_at = ? WHERE id = ?`,
		displayName, attrsJSON, time.Now(), id)
	if err != nil {
		return 0, false, fmt.Errorf("store: update entity: %w", err)
	}
	return id, false, nil
}

func encodeAttrs(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("store: encode attrs: %w", err)
	}
	return string(b), nil
}

// ReplaceProse stores the verbatim content of one prose section.
func (t *Tx) ReplaceProse(id models.EntityID, section, content string) error {
	_, err := t.tx.Exec(`
		INSERT INTO prose (entity_id, section, content) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, section) DO UPDATE SET content = excluded.content
	`, id, section, content)
	if err != nil {
		return fmt.Errorf("store: replace prose: %w", err)
	}
	return nil
}

// Prose returns the stored content of one prose section, or empty string.
func (s *Store) Prose(id models.EntityID, section string) (string, error) {
	var content string
	err := s.conn.QueryRow(`SELECT content FROM prose WHERE entity_id = ? AND section = ?`, id, section).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: prose: %w", err)
	}
	return content, nil
}

// ReplaceQuotes replaces an entity's quote rows with the given ordered set.
func (t *Tx) ReplaceQuotes(id models.EntityID, quotes []models.Quote) error {
	if _, err := t.tx.Exec(`DELETE FROM quotes WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("store: clear quotes: %w", err)
	}
	for i, q := range quotes {
		var attribution any
		if q.AttributionID != 0 {
			attribution = q.AttributionID
		}
		_, err := t.tx.Exec(`INSERT INTO quotes (entity_id, position, body, attribution_id, mode, note) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, q.Body, attribution, q.Mode, q.Note)
		if err != nil {
			return fmt.Errorf("store: insert quote: %w", err)
		}
	}
	return nil
}

// Quotes returns an entity's quotes in position order.
func (s *Store) Quotes(id models.EntityID) ([]models.Quote, error) {
	rows, err := s.conn.Query(`SELECT entity_id, position, body, COALESCE(attribution_id, 0), mode, note
		FROM quotes WHERE entity_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("store: quotes: %w", err)
	}
	defer rows.Close()

	var out []models.Quote
	for rows.Next() {
		var q models.Quote
		if err := rows.Scan(&q.EntityID, &q.Position, &q.Body, &q.AttributionID, &q.Mode, &q.Note); err != nil {
			return nil, fmt.Errorf("store: scan quote: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
