// Package resolver maps human-readable display names (as written in inline
// [[references]]) to stable entity ids, and back. A Snapshot is built once per
// sync batch from the datastore and, once populated, never mutated, so
// lookups are safe to run concurrently across page workers.
package resolver

import (
	"strings"

	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/pkg/slug"
)

// Outcome classifies a resolution attempt.
type Outcome int

const (
	// Resolved means exactly one entity matched.
	Resolved Outcome = iota
	// Unresolved means no entity matched.
	Unresolved
	// Ambiguous means two or more entities share the normalized display name
	// and no exact slug was given.
	Ambiguous
)

// Snapshot is a read-only name index over the live (non-soft-deleted) entities.
type Snapshot struct {
	bySlug  map[string]models.EntityID
	byName  map[string][]models.EntityID
	display map[models.EntityID]string
	pending models.EntityID
}

// NewSnapshot indexes the given entities. Soft-deleted entities are skipped so
// they can neither be referenced nor shadow a live name.
func NewSnapshot(entities []models.Entity) *Snapshot {
	s := &Snapshot{
		bySlug:  make(map[string]models.EntityID, len(entities)),
		byName:  make(map[string][]models.EntityID, len(entities)),
		display: make(map[models.EntityID]string, len(entities)),
	}
	for _, e := range entities {
		if e.Deleted() {
			continue
		}
		s.bySlug[e.Slug] = e.ID
		key := slug.Normalize(e.DisplayName)
		s.byName[key] = append(s.byName[key], e.ID)
		s.display[e.ID] = e.DisplayName
	}
	return s
}

// AddPending indexes an entity that does not exist in the datastore yet,
// under a synthetic negative id. Pages ingested in one batch reference each
// other through pending entries during validation, before anything is
// written. Pending entries must be added before the snapshot is shared
// across workers.
func (s *Snapshot) AddPending(pageSlug, displayName string) {
	if _, ok := s.bySlug[pageSlug]; ok {
		return
	}
	s.pending--
	id := s.pending
	s.bySlug[pageSlug] = id
	key := slug.Normalize(displayName)
	s.byName[key] = append(s.byName[key], id)
	s.display[id] = displayName
}

// Resolve maps a display name (or exact slug) to an entity id. Exact slug
// matches win; otherwise the name is matched case- and diacritic-insensitively.
func (s *Snapshot) Resolve(name string) (models.EntityID, Outcome) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, Unresolved
	}
	if id, ok := s.bySlug[name]; ok {
		return id, Resolved
	}
	ids := s.byName[slug.Normalize(name)]
	switch len(ids) {
	case 0:
		return 0, Unresolved
	case 1:
		return ids[0], Resolved
	default:
		return 0, Ambiguous
	}
}

// Display returns the display name for an entity id.
func (s *Snapshot) Display(id models.EntityID) (string, bool) {
	name, ok := s.display[id]
	return name, ok
}

// Exists reports whether id refers to a live entity in this snapshot.
func (s *Snapshot) Exists(id models.EntityID) bool {
	_, ok := s.display[id]
	return ok
}

// Len returns the number of live entities in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.display)
}
