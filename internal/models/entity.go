// Package models defines the domain types for Canon.
package models

import "time"

// EntityID is the stable identifier of a datastore entity.
type EntityID int64

// Category determines which schema, builder, and template apply to an entity's page.
type Category string

// Known entity categories.
const (
	CategoryCharacter Category = "character"
	CategoryLocation  Category = "location"
	CategoryScene     Category = "scene"
)

// Entity represents a datastore row projected onto a page.
type Entity struct {
	ID          EntityID       `json:"id"`
	Category    Category       `json:"category"`
	Slug        string         `json:"slug"`
	DisplayName string         `json:"display_name"`
	Attrs       map[string]any `json:"attrs,omitempty"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Deleted reports whether the entity is soft-deleted.
func (e *Entity) Deleted() bool {
	return e.DeletedAt != nil
}

// Relation is a named, directed edge between two entities.
type Relation struct {
	Name      string    `json:"name"`
	ParentID  EntityID  `json:"parent_id"`
	ChildID   EntityID  `json:"child_id"`
	Qualifier string    `json:"qualifier,omitempty"`
	Note      string    `json:"note,omitempty"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quote is an attributed quotation owned by an entity.
type Quote struct {
	EntityID      EntityID `json:"entity_id"`
	Position      int      `json:"position"`
	Body          string   `json:"body,omitempty"`
	AttributionID EntityID `json:"attribution_id,omitempty"`
	Mode          string   `json:"mode"`
	Note          string   `json:"note,omitempty"`
}

// Tombstone records an intentionally removed relation so that re-ingesting a
// stale copy of a page cannot resurrect it.
type Tombstone struct {
	RelationName string    `json:"relation_name"`
	ParentID     EntityID  `json:"parent_id"`
	ChildID      EntityID  `json:"child_id"`
	DeletedAt    time.Time `json:"deleted_at"`
	DeletedBy    string    `json:"deleted_by"`
}

// SyncRecord caches the hash of a page's last rendered state. It is derived
// data: deleting it only forces an idempotent rewrite, never a content change.
type SyncRecord struct {
	Path             string    `json:"path"`
	LastRenderedHash string    `json:"last_rendered_hash"`
	LastSyncedAt     time.Time `json:"last_synced_at"`
}

// PageMetadata is a lightweight representation returned by list operations.
type PageMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
