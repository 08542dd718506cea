package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veslund/canon/internal/models"
)

// RelatedEntity pairs a relation row with the entity on its far end, as needed
// by the context builders.
type RelatedEntity struct {
	Relation    models.Relation
	ID          models.EntityID
	Category    models.Category
	Slug        string
	DisplayName string
	Attrs       map[string]any
}

// CoOccurrence is one co-occurring entity with its shared-parent count.
type CoOccurrence struct {
	ID          models.EntityID
	Slug        string
	DisplayName string
	Count       int
}

// AddRelation inserts a relation row inside the page transaction.
func (t *Tx) AddRelation(r models.Relation) error {
	_, err := t.tx.Exec(`INSERT INTO relations (name, parent_id, child_id, qualifier, note, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.ParentID, r.ChildID, r.Qualifier, r.Note, r.Position, time.Now())
	if err != nil {
		return fmt.Errorf("store: add relation: %w", err)
	}
	return nil
}

// UpdateRelation rewrites the mutable fields of an existing relation.
func (t *Tx) UpdateRelation(r models.Relation) error {
	_, err := t.tx.Exec(`UPDATE relations SET qualifier = ?, note = ?, position = ?, updated_at = ?
		WHERE name = ? AND parent_id = ? AND child_id = ?`,
		r.Qualifier, r.Note, r.Position, time.Now(), r.Name, r.ParentID, r.ChildID)
	if err != nil {
		return fmt.Errorf("store: update relation: %w", err)
	}
	return nil
}

// RemoveRelation deletes one relation triple.
func (t *Tx) RemoveRelation(name string, parent, child models.EntityID) error {
	_, err := t.tx.Exec(`DELETE FROM relations WHERE name = ? AND parent_id = ? AND child_id = ?`,
		name, parent, child)
	if err != nil {
		return fmt.Errorf("store: remove relation: %w", err)
	}
	return nil
}

// RelationsFrom returns the relations of one name under a parent, in position
// order, inside the page transaction.
func (t *Tx) RelationsFrom(name string, parent models.EntityID) ([]models.Relation, error) {
	rows, err := t.tx.Query(`SELECT name, parent_id, child_id, qualifier, note, position, updated_at
		FROM relations WHERE name = ? AND parent_id = ? ORDER BY position`, name, parent)
	if err != nil {
		return nil, fmt.Errorf("store: relations from: %w", err)
	}
	return scanRelations(rows)
}

// RelationsFrom is the read-only variant used outside a page transaction.
func (s *Store) RelationsFrom(name string, parent models.EntityID) ([]models.Relation, error) {
	rows, err := s.conn.Query(`SELECT name, parent_id, child_id, qualifier, note, position, updated_at
		FROM relations WHERE name = ? AND parent_id = ? ORDER BY position`, name, parent)
	if err != nil {
		return nil, fmt.Errorf("store: relations from: %w", err)
	}
	return scanRelations(rows)
}

func scanRelations(rows *sql.Rows) ([]models.Relation, error) {
	defer rows.Close()
	var out []models.Relation
	for rows.Next() {
		var r models.Relation
		if err := rows.Scan(&r.Name, &r.ParentID, &r.ChildID, &r.Qualifier, &r.Note, &r.Position, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelationExists reports whether the exact triple is present.
func (s *Store) RelationExists(name string, parent, child models.EntityID) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT count(*) FROM relations WHERE name = ? AND parent_id = ? AND child_id = ?`,
		name, parent, child).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: relation exists: %w", err)
	}
	return n > 0, nil
}

// RelatedOf returns the live entities on the child end of a parent's
// relations, in position order.
func (s *Store) RelatedOf(name string, parent models.EntityID) ([]RelatedEntity, error) {
	rows, err := s.conn.Query(`
		SELECT r.name, r.parent_id, r.child_id, r.qualifier, r.note, r.position, r.updated_at,
		       e.id, e.category, e.slug, e.display_name, e.attrs
		FROM relations r
		JOIN entities e ON e.id = r.child_id
		WHERE r.name = ? AND r.parent_id = ? AND e.deleted_at IS NULL
		ORDER BY r.position`, name, parent)
	if err != nil {
		return nil, fmt.Errorf("store: related of: %w", err)
	}
	return scanRelated(rows)
}

// RelationsTo returns the live entities on the parent end of relations whose
// child is the given entity, ordered by display name for deterministic output.
func (s *Store) RelationsTo(name string, child models.EntityID) ([]RelatedEntity, error) {
	rows, err := s.conn.Query(`
		SELECT r.name, r.parent_id, r.child_id, r.qualifier, r.note, r.position, r.updated_at,
		       e.id, e.category, e.slug, e.display_name, e.attrs
		FROM relations r
		JOIN entities e ON e.id = r.parent_id
		WHERE r.name = ? AND r.child_id = ? AND e.deleted_at IS NULL
		ORDER BY e.display_name, e.slug`, name, child)
	if err != nil {
		return nil, fmt.Errorf("store: relations to: %w", err)
	}
	return scanRelated(rows)
}

func scanRelated(rows *sql.Rows) ([]RelatedEntity, error) {
	defer rows.Close()
	var out []RelatedEntity
	for rows.Next() {
		var (
			re        RelatedEntity
			attrsJSON string
		)
		err := rows.Scan(&re.Relation.Name, &re.Relation.ParentID, &re.Relation.ChildID,
			&re.Relation.Qualifier, &re.Relation.Note, &re.Relation.Position, &re.Relation.UpdatedAt,
			&re.ID, &re.Category, &re.Slug, &re.DisplayName, &attrsJSON)
		if err != nil {
			return nil, fmt.Errorf("store: scan related: %w", err)
		}
		if attrsJSON != "" && attrsJSON != "{}" {
			if err := json.Unmarshal([]byte(attrsJSON), &re.Attrs); err != nil {
				return nil, fmt.Errorf("store: decode attrs: %w", err)
			}
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

// SharedParents ranks the parents that share at least one child with the given
// parent under the same relation: for the participant relation this is "scenes
// sharing a character with scene X", ordered by shared count descending, then
// name.
func (s *Store) SharedParents(name string, parent models.EntityID) ([]CoOccurrence, error) {
	rows, err := s.conn.Query(`
		SELECT other.parent_id, e.slug, e.display_name, count(*) AS shared
		FROM relations own
		JOIN relations other ON other.child_id = own.child_id AND other.name = own.name
		JOIN entities e ON e.id = other.parent_id
		WHERE own.name = ? AND own.parent_id = ? AND other.parent_id != ? AND e.deleted_at IS NULL
		GROUP BY other.parent_id, e.slug, e.display_name
		ORDER BY shared DESC, e.display_name, e.slug`, name, parent, parent)
	if err != nil {
		return nil, fmt.Errorf("store: shared parents: %w", err)
	}
	defer rows.Close()

	var out []CoOccurrence
	for rows.Next() {
		var c CoOccurrence
		if err := rows.Scan(&c.ID, &c.Slug, &c.DisplayName, &c.Count); err != nil {
			return nil, fmt.Errorf("store: scan shared parent: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CoOccurrences ranks the entities that share relation parents with the given
// child: for the participant relation this is "characters appearing in the
// same scenes", ordered by shared count descending, then name.
func (s *Store) CoOccurrences(name string, child models.EntityID) ([]CoOccurrence, error) {
	rows, err := s.conn.Query(`
		SELECT other.child_id, e.slug, e.display_name, count(*) AS shared
		FROM relations own
		JOIN relations other ON other.parent_id = own.parent_id AND other.name = own.name
		JOIN entities e ON e.id = other.child_id
		WHERE own.name = ? AND own.child_id = ? AND other.child_id != ? AND e.deleted_at IS NULL
		GROUP BY other.child_id, e.slug, e.display_name
		ORDER BY shared DESC, e.display_name, e.slug`, name, child, child)
	if err != nil {
		return nil, fmt.Errorf("store: co-occurrences: %w", err)
	}
	defer rows.Close()

	var out []CoOccurrence
	for rows.Next() {
		var c CoOccurrence
		if err := rows.Scan(&c.ID, &c.Slug, &c.DisplayName, &c.Count); err != nil {
			return nil, fmt.Errorf("store: scan co-occurrence: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
