package build

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp("", "canon-build-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	st, err := store.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreate(t *testing.T, st *store.Store, c models.Category, slug, name string, attrs map[string]any) models.EntityID {
	t.Helper()
	id, err := st.CreateEntity(c, slug, name, attrs)
	if err != nil {
		t.Fatalf("CreateEntity(%s): %v", slug, err)
	}
	return id
}

func mustRelate(t *testing.T, st *store.Store, name string, parent, child models.EntityID, qualifier, note string, pos int) {
	t.Helper()
	err := st.InTx(func(tx *store.Tx) error {
		return tx.AddRelation(models.Relation{
			Name: name, ParentID: parent, ChildID: child,
			Qualifier: qualifier, Note: note, Position: pos,
		})
	})
	if err != nil {
		t.Fatalf("AddRelation(%s): %v", name, err)
	}
}

func TestBuildCharacter_EditableSections(t *testing.T) {
	st := testStore(t)

	anna := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus-vale", "Marcus Vale", nil)
	diary := mustCreate(t, st, models.CategoryCharacter, "elena-cruz", "Elena Cruz", nil)

	err := st.InTx(func(tx *store.Tx) error {
		if err := tx.ReplaceProse(anna, "Overview", "A meticulous archivist."); err != nil {
			return err
		}
		return tx.ReplaceQuotes(anna, []models.Quote{
			{EntityID: anna, Position: 0, Body: "I remember everything.\nEven what I shouldn't.", AttributionID: marcus, Mode: "verbatim"},
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	mustRelate(t, st, "relationship", anna, marcus, "", "rival", 0)
	mustRelate(t, st, "based_on", anna, diary, "composite", "childhood friend", 0)

	ctx, err := BuildCharacter(st, anna)
	if err != nil {
		t.Fatalf("BuildCharacter: %v", err)
	}
	if ctx.Title != "Anna Reyes" || ctx.Slug != "anna-reyes" {
		t.Errorf("identity = (%q, %q)", ctx.Title, ctx.Slug)
	}
	if ctx.Overview != "A meticulous archivist." {
		t.Errorf("Overview = %q", ctx.Overview)
	}
	if !ctx.HasRelationships || len(ctx.Relationships) != 1 || ctx.Relationships[0].Note != "rival" {
		t.Errorf("Relationships = %+v", ctx.Relationships)
	}
	if !ctx.HasBasedOn || ctx.BasedOn[0].Qualifier != "composite" || ctx.BasedOn[0].Display != "Elena Cruz" {
		t.Errorf("BasedOn = %+v", ctx.BasedOn)
	}
	if !ctx.HasVoice {
		t.Fatal("expected voice section")
	}
	q := ctx.Voice[0]
	if len(q.BodyLines) != 2 || q.Attribution != "Marcus Vale" || q.Mode != "verbatim" {
		t.Errorf("quote = %+v", q)
	}
}

func TestBuildCharacter_AppearanceLine(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)

	ctx, err := BuildCharacter(st, anna)
	if err != nil {
		t.Fatalf("BuildCharacter: %v", err)
	}
	if ctx.AppearanceLine != "Appears in no scenes yet." {
		t.Errorf("empty line = %q", ctx.AppearanceLine)
	}

	for i, act := range []int{1, 1, 2, 2, 2, 0} {
		attrs := map[string]any{}
		if act > 0 {
			attrs["act"] = act
		}
		sc := mustCreate(t, st, models.CategoryScene, fmt.Sprintf("scene-%d", i), fmt.Sprintf("Scene %d", i), attrs)
		mustRelate(t, st, "participant", sc, anna, "", "", 0)
	}

	ctx, err = BuildCharacter(st, anna)
	if err != nil {
		t.Fatalf("BuildCharacter: %v", err)
	}
	want := "Appears in 6 scenes (Act I: 2 · Act II: 3)."
	if ctx.AppearanceLine != want {
		t.Errorf("AppearanceLine = %q, want %q", ctx.AppearanceLine, want)
	}
}

func TestBuildCharacter_CollaboratorThresholds(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus-vale", "Marcus Vale", nil)
	elena := mustCreate(t, st, models.CategoryCharacter, "elena-cruz", "Elena Cruz", nil)

	// Anna appears in 5 scenes. Marcus shares 3 of them, Elena only 2.
	for i := 0; i < 5; i++ {
		sc := mustCreate(t, st, models.CategoryScene, fmt.Sprintf("scene-%d", i), fmt.Sprintf("Scene %d", i), nil)
		mustRelate(t, st, "participant", sc, anna, "", "", 0)
		if i < 3 {
			mustRelate(t, st, "participant", sc, marcus, "", "", 1)
		}
		if i < 2 {
			mustRelate(t, st, "participant", sc, elena, "", "", 2)
		}
	}

	ctx, err := BuildCharacter(st, anna)
	if err != nil {
		t.Fatalf("BuildCharacter(anna): %v", err)
	}
	if !ctx.HasCollaborators || len(ctx.Collaborators) != 1 {
		t.Fatalf("Collaborators = %+v", ctx.Collaborators)
	}
	if ctx.Collaborators[0].Display != "Marcus Vale" || ctx.Collaborators[0].CountLabel != "3 shared scenes" {
		t.Errorf("collaborator = %+v", ctx.Collaborators[0])
	}

	// Marcus only appears 3 times: below the section threshold even though he
	// shares 3 scenes with Anna.
	ctx, err = BuildCharacter(st, marcus)
	if err != nil {
		t.Fatalf("BuildCharacter(marcus): %v", err)
	}
	if ctx.HasCollaborators {
		t.Errorf("expected no collaborators section for marcus, got %+v", ctx.Collaborators)
	}
}

func TestBuildScene(t *testing.T) {
	st := testStore(t)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
	marcus := mustCreate(t, st, models.CategoryCharacter, "marcus-vale", "Marcus Vale", nil)
	harbor := mustCreate(t, st, models.CategoryLocation, "harbor", "The Harbor", nil)
	archive := mustCreate(t, st, models.CategoryScene, "interview-tape", "Interview Tape", nil)
	sc := mustCreate(t, st, models.CategoryScene, "night-crossing", "Night Crossing", map[string]any{"act": 2})
	other := mustCreate(t, st, models.CategoryScene, "aftermath", "Aftermath", nil)

	err := st.InTx(func(tx *store.Tx) error {
		return tx.ReplaceProse(sc, "Summary", "Anna crosses the harbor at night.")
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	mustRelate(t, st, "participant", sc, anna, "", "", 0)
	mustRelate(t, st, "participant", sc, marcus, "", "pursuer", 1)
	mustRelate(t, st, "participant", other, anna, "", "", 0)
	mustRelate(t, st, "setting", sc, harbor, "", "", 0)
	mustRelate(t, st, "source", sc, archive, "Interview", "tape 4, side B", 0)

	ctx, err := BuildScene(st, sc)
	if err != nil {
		t.Fatalf("BuildScene: %v", err)
	}
	if !ctx.HasAct || ctx.Act != 2 {
		t.Errorf("act = (%v, %d)", ctx.HasAct, ctx.Act)
	}
	if ctx.Summary != "Anna crosses the harbor at night." {
		t.Errorf("Summary = %q", ctx.Summary)
	}
	if len(ctx.Participants) != 2 || ctx.Participants[1].Note != "pursuer" {
		t.Errorf("Participants = %+v", ctx.Participants)
	}
	if !ctx.HasSetting || ctx.Setting[0].Display != "The Harbor" {
		t.Errorf("Setting = %+v", ctx.Setting)
	}
	if !ctx.HasSources || ctx.Sources[0].Kind != "Interview" || ctx.Sources[0].Note != "tape 4, side B" {
		t.Errorf("Sources = %+v", ctx.Sources)
	}
	if !ctx.HasNeighbors || len(ctx.Neighbors) != 1 || ctx.Neighbors[0].Display != "Aftermath" {
		t.Fatalf("Neighbors = %+v", ctx.Neighbors)
	}
	if ctx.Neighbors[0].Note != "1 shared character" {
		t.Errorf("neighbor note = %q", ctx.Neighbors[0].Note)
	}
}

func TestBuildLocation_LayoutTiers(t *testing.T) {
	st := testStore(t)
	harbor := mustCreate(t, st, models.CategoryLocation, "harbor", "The Harbor", nil)
	anna := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)

	ctx, err := BuildLocation(st, harbor)
	if err != nil {
		t.Fatalf("BuildLocation: %v", err)
	}
	if ctx.HasScenes || ctx.HasVisitors {
		t.Errorf("expected empty aggregates, got %+v", ctx)
	}

	addScenes := func(from, to int) {
		t.Helper()
		for i := from; i < to; i++ {
			sc := mustCreate(t, st, models.CategoryScene, fmt.Sprintf("scene-%02d", i), fmt.Sprintf("Scene %02d", i), nil)
			mustRelate(t, st, "setting", sc, harbor, "", "", 0)
			mustRelate(t, st, "participant", sc, anna, "", "", 0)
		}
	}

	addScenes(0, 2)
	ctx, err = BuildLocation(st, harbor)
	if err != nil {
		t.Fatalf("BuildLocation: %v", err)
	}
	if ctx.SceneLayout != LayoutInline {
		t.Errorf("layout at 2 scenes = %q", ctx.SceneLayout)
	}
	if !strings.Contains(ctx.SceneInline, "[[Scene 00]], [[Scene 01]]") {
		t.Errorf("SceneInline = %q", ctx.SceneInline)
	}
	if !ctx.HasVisitors || len(ctx.Visitors) != 1 || ctx.Visitors[0].Display != "Anna Reyes" {
		t.Errorf("Visitors = %+v", ctx.Visitors)
	}

	addScenes(2, 8)
	ctx, err = BuildLocation(st, harbor)
	if err != nil {
		t.Fatalf("BuildLocation: %v", err)
	}
	if ctx.SceneLayout != LayoutList {
		t.Errorf("layout at 8 scenes = %q", ctx.SceneLayout)
	}

	addScenes(8, 15)
	ctx, err = BuildLocation(st, harbor)
	if err != nil {
		t.Fatalf("BuildLocation: %v", err)
	}
	if ctx.SceneLayout != LayoutOverflow {
		t.Errorf("layout at 15 scenes = %q", ctx.SceneLayout)
	}
	if ctx.SceneCount != 15 {
		t.Errorf("SceneCount = %d", ctx.SceneCount)
	}
	if ctx.SceneOverflow != "15 scenes are set here. See [[Index]] for the full list." {
		t.Errorf("SceneOverflow = %q", ctx.SceneOverflow)
	}
}

func TestBuildIndex(t *testing.T) {
	st := testStore(t)
	mustCreate(t, st, models.CategoryCharacter, "marcus-vale", "Marcus Vale", nil)
	mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
	mustCreate(t, st, models.CategoryLocation, "harbor", "The Harbor", nil)

	ctx, err := BuildIndex(st)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if len(ctx.Groups) != 3 {
		t.Fatalf("groups = %d", len(ctx.Groups))
	}
	chars := ctx.Groups[0]
	if chars.Heading != "Characters" || len(chars.Entries) != 2 {
		t.Fatalf("characters group = %+v", chars)
	}
	if chars.Entries[0].Display != "Anna Reyes" {
		t.Errorf("entries not ordered by name: %+v", chars.Entries)
	}
	if len(ctx.Groups[2].Entries) != 0 {
		t.Errorf("expected empty scenes group, got %+v", ctx.Groups[2].Entries)
	}
}

func TestBuild_MissingAndDeleted(t *testing.T) {
	st := testStore(t)

	_, err := BuildCharacter(st, 999)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing entity: err = %v, want ErrNotFound", err)
	}

	id := mustCreate(t, st, models.CategoryCharacter, "anna-reyes", "Anna Reyes", nil)
	if err := st.SoftDeleteEntity(id); err != nil {
		t.Fatalf("SoftDeleteEntity: %v", err)
	}
	_, err = BuildCharacter(st, id)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted entity: err = %v, want ErrNotFound", err)
	}
}
