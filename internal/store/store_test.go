package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "canon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	st, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreate(t *testing.T, st *Store, c models.Category, slug, name string) models.EntityID {
	t.Helper()
	id, err := st.CreateEntity(c, slug, name, nil)
	if err != nil {
		t.Fatalf("CreateEntity(%s): %v", slug, err)
	}
	return id
}

func TestEnsureEntity_CreateThenUpdate(t *testing.T) {
	st := testStore(t)

	var id models.EntityID
	err := st.InTx(func(tx *Tx) error {
		var created bool
		var err error
		id, created, err = tx.EnsureEntity(models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
		if err != nil {
			return err
		}
		if !created {
			t.Error("expected created = true on first ensure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	err = st.InTx(func(tx *Tx) error {
		id2, created, err := tx.EnsureEntity(models.CategoryCharacter, "anna-reyes", "Anna M. Reyes", map[string]any{"age": 34})
		if err != nil {
			return err
		}
		if created || id2 != id {
			t.Errorf("second ensure = (%d, %v), want (%d, false)", id2, created, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	e, err := st.GetEntity(id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if e.DisplayName != "Anna M. Reyes" {
		t.Errorf("display_name = %q", e.DisplayName)
	}
	if e.Attrs["age"] != float64(34) {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	st := testStore(t)
	_, err := st.GetEntity(99)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSoftDelete(t *testing.T) {
	st := testStore(t)
	id := mustCreate(t, st, models.CategoryCharacter, "ghost", "Old Ghost")

	if err := st.SoftDeleteEntity(id); err != nil {
		t.Fatalf("SoftDeleteEntity: %v", err)
	}

	e, err := st.GetEntity(id)
	if err != nil {
		t.Fatalf("GetEntity after soft delete: %v", err)
	}
	if !e.Deleted() {
		t.Error("entity should be soft-deleted")
	}
	if _, err := st.GetEntityBySlug("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("slug lookup of deleted entity = %v, want ErrNotFound", err)
	}
}

func TestRelations_RoundTrip(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna", "Anna")
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus", "Marcus")

	err := st.InTx(func(tx *Tx) error {
		return tx.AddRelation(models.Relation{Name: "relationship", ParentID: anna, ChildID: marcus, Note: "rival", Position: 0})
	})
	if err != nil {
		t.Fatalf("AddRelation: %v", err)
	}

	ok, err := st.RelationExists("relationship", anna, marcus)
	if err != nil || !ok {
		t.Fatalf("RelationExists = (%v, %v)", ok, err)
	}

	related, err := st.RelatedOf("relationship", anna)
	if err != nil {
		t.Fatalf("RelatedOf: %v", err)
	}
	if len(related) != 1 || related[0].DisplayName != "Marcus" || related[0].Relation.Note != "rival" {
		t.Errorf("related = %+v", related)
	}

	err = st.InTx(func(tx *Tx) error {
		return tx.RemoveRelation("relationship", anna, marcus)
	})
	if err != nil {
		t.Fatalf("RemoveRelation: %v", err)
	}
	ok, _ = st.RelationExists("relationship", anna, marcus)
	if ok {
		t.Error("relation should be gone")
	}
}

func TestRelatedOf_ExcludesSoftDeleted(t *testing.T) {
	st := testStore(t)
	scene := mustCreate(t, st, models.CategoryScene, "s1", "Scene One")
	a := mustCreate(t, st, models.CategoryCharacter, "a", "A")
	b := mustCreate(t, st, models.CategoryCharacter, "b", "B")

	err := st.InTx(func(tx *Tx) error {
		if err := tx.AddRelation(models.Relation{Name: "participant", ParentID: scene, ChildID: a, Position: 0}); err != nil {
			return err
		}
		return tx.AddRelation(models.Relation{Name: "participant", ParentID: scene, ChildID: b, Position: 1})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SoftDeleteEntity(b); err != nil {
		t.Fatal(err)
	}

	related, err := st.RelatedOf("participant", scene)
	if err != nil {
		t.Fatal(err)
	}
	if len(related) != 1 || related[0].ID != a {
		t.Errorf("related = %+v", related)
	}
}

func TestCoOccurrences(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna", "Anna")
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus", "Marcus")
	iris := mustCreate(t, st, models.CategoryCharacter, "iris", "Iris")

	// Anna shares 2 scenes with Marcus, 1 with Iris.
	for i, cast := range [][]models.EntityID{{anna, marcus}, {anna, marcus, iris}, {anna}} {
		scene := mustCreate(t, st, models.CategoryScene, "s"+string(rune('1'+i)), "Scene "+string(rune('1'+i)))
		err := st.InTx(func(tx *Tx) error {
			for pos, c := range cast {
				if err := tx.AddRelation(models.Relation{Name: "participant", ParentID: scene, ChildID: c, Position: pos}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	co, err := st.CoOccurrences("participant", anna)
	if err != nil {
		t.Fatalf("CoOccurrences: %v", err)
	}
	if len(co) != 2 {
		t.Fatalf("co = %+v", co)
	}
	if co[0].ID != marcus || co[0].Count != 2 {
		t.Errorf("co[0] = %+v", co[0])
	}
	if co[1].ID != iris || co[1].Count != 1 {
		t.Errorf("co[1] = %+v", co[1])
	}
}

func TestProseAndQuotes(t *testing.T) {
	st := testStore(t)
	id := mustCreate(t, st, models.CategoryCharacter, "anna", "Anna")

	err := st.InTx(func(tx *Tx) error {
		if err := tx.ReplaceProse(id, "Overview", "First take."); err != nil {
			return err
		}
		return tx.ReplaceProse(id, "Overview", "Second take.\n\nTwo paragraphs.")
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := st.Prose(id, "Overview")
	if err != nil || got != "Second take.\n\nTwo paragraphs." {
		t.Errorf("Prose = (%q, %v)", got, err)
	}

	quotes := []models.Quote{
		{Body: "First.", AttributionID: id, Mode: "verbatim"},
		{Body: "", Mode: "paraphrase", Note: "half-remembered"},
	}
	err = st.InTx(func(tx *Tx) error { return tx.ReplaceQuotes(id, quotes) })
	if err != nil {
		t.Fatal(err)
	}
	got2, err := st.Quotes(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got2) != 2 || got2[0].Body != "First." || got2[0].AttributionID != id || got2[1].Note != "half-remembered" {
		t.Errorf("quotes = %+v", got2)
	}
	if got2[1].AttributionID != 0 {
		t.Errorf("missing attribution should scan as 0, got %d", got2[1].AttributionID)
	}
}

func TestTombstonePrecedence(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna", "Anna")
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus", "Marcus")

	deletedAt := time.Now()
	err := st.InTx(func(tx *Tx) error {
		return tx.RecordTombstone(models.Tombstone{
			RelationName: "relationship", ParentID: anna, ChildID: marcus,
			DeletedAt: deletedAt, DeletedBy: "ingest",
		})
	})
	if err != nil {
		t.Fatalf("RecordTombstone: %v", err)
	}

	check := func(since time.Time, want bool) {
		t.Helper()
		err := st.InTx(func(tx *Tx) error {
			got, err := tx.IsTombstoned("relationship", anna, marcus, since)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("IsTombstoned(since=%v) = %v, want %v", since, got, want)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Older source edit: tombstone wins.
	check(deletedAt.Add(-time.Hour), true)
	// Equal timestamp: deletion wins.
	check(deletedAt, true)
	// Newer source edit: re-creation allowed.
	check(deletedAt.Add(time.Hour), false)

	// Unrelated triples are unaffected.
	err = st.InTx(func(tx *Tx) error {
		got, err := tx.IsTombstoned("based_on", anna, marcus, deletedAt.Add(-time.Hour))
		if err != nil {
			return err
		}
		if got {
			t.Error("different relation name must not match")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ledger, err := st.Tombstones("relationship", anna, marcus)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 1 || ledger[0].DeletedBy != "ingest" {
		t.Errorf("ledger = %+v", ledger)
	}
}

func TestSyncRecords(t *testing.T) {
	st := testStore(t)

	rec, err := st.GetSyncRecord("characters/anna.md")
	if err != nil || rec != nil {
		t.Fatalf("missing record = (%+v, %v), want (nil, nil)", rec, err)
	}

	now := time.Now()
	if err := st.UpsertSyncRecord(models.SyncRecord{Path: "characters/anna.md", LastRenderedHash: "h1", LastSyncedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertSyncRecord(models.SyncRecord{Path: "characters/anna.md", LastRenderedHash: "h2", LastSyncedAt: now}); err != nil {
		t.Fatal(err)
	}

	rec, err = st.GetSyncRecord("characters/anna.md")
	if err != nil || rec == nil || rec.LastRenderedHash != "h2" {
		t.Fatalf("rec = (%+v, %v)", rec, err)
	}

	all, err := st.AllSyncRecords()
	if err != nil || len(all) != 1 {
		t.Fatalf("all = (%v, %v)", all, err)
	}

	if err := st.DeleteSyncRecord("characters/anna.md"); err != nil {
		t.Fatal(err)
	}
	rec, _ = st.GetSyncRecord("characters/anna.md")
	if rec != nil {
		t.Error("record should be gone")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna", "Anna")
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus", "Marcus")

	wantErr := errors.New("boom")
	err := st.InTx(func(tx *Tx) error {
		if err := tx.AddRelation(models.Relation{Name: "relationship", ParentID: anna, ChildID: marcus}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	ok, _ := st.RelationExists("relationship", anna, marcus)
	if ok {
		t.Error("write should have been rolled back")
	}
}
