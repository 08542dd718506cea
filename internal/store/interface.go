package store

import (
	"github.com/veslund/canon/internal/models"
)

// Datastore defines the typed read operations the engine consumes. Consumers
// that only read should depend on this interface rather than the concrete
// *Store type to facilitate testing with mocks.
type Datastore interface {
	GetEntity(id models.EntityID) (*models.Entity, error)
	GetEntityBySlug(slug string) (*models.Entity, error)
	AllEntities() ([]models.Entity, error)
	ListEntities(c models.Category) ([]models.Entity, error)
	Prose(id models.EntityID, section string) (string, error)
	Quotes(id models.EntityID) ([]models.Quote, error)
	RelationsFrom(name string, parent models.EntityID) ([]models.Relation, error)
	RelationExists(name string, parent, child models.EntityID) (bool, error)
	RelatedOf(name string, parent models.EntityID) ([]RelatedEntity, error)
	RelationsTo(name string, child models.EntityID) ([]RelatedEntity, error)
	CoOccurrences(name string, child models.EntityID) ([]CoOccurrence, error)
	SharedParents(name string, parent models.EntityID) ([]CoOccurrence, error)
	Tombstones(name string, parent, child models.EntityID) ([]models.Tombstone, error)
	GetSyncRecord(path string) (*models.SyncRecord, error)
	AllSyncRecords() (map[string]string, error)
	Close() error
}

// Verify *Store satisfies Datastore at compile time.
var _ Datastore = (*Store)(nil)
