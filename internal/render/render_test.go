package render

import (
	"bytes"
	"testing"

	"github.com/veslund/canon/internal/build"
	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/parse"
	"github.com/veslund/canon/internal/resolver"
)

func characterContext() *build.CharacterContext {
	return &build.CharacterContext{
		Slug:     "anna-reyes",
		Title:    "Anna Reyes",
		Overview: "Anna grew up in the Harbor District.\n\nShe keeps two notebooks: one honest, one for show.",

		HasRelationships: true,
		Relationships: []build.RefItem{
			{Display: "Marcus Vale", Note: "rival"},
			{Display: "Known Person"},
		},
		HasBasedOn: true,
		BasedOn: []build.StructuredItem{
			{Display: "Known Person", Qualifier: "primary"},
			{Display: "Marcus Vale", Qualifier: "composite", Note: "only the temper"},
		},
		HasVoice: true,
		Voice: []build.QuoteItem{
			{BodyLines: []string{"I never lose. I reschedule."}, Attribution: "Marcus Vale", Mode: "verbatim"},
		},

		AppearanceLine: "Appears in 4 scenes.",
	}
}

const wantCharacterPage = `---
category: character
slug: anna-reyes
title: Anna Reyes
---

# Anna Reyes

## Overview
Anna grew up in the Harbor District.

She keeps two notebooks: one honest, one for show.

## Relationships
- [[Marcus Vale]] — rival
- [[Known Person]]

## Based On
**[[Known Person]]** · primary
**[[Marcus Vale]]** · composite — only the temper

## Voice
> I never lose. I reschedule.
— [[Marcus Vale]] · verbatim

<!-- canon:generated -->

## Appearances
Appears in 4 scenes.
`

func TestCharacter_CanonicalPage(t *testing.T) {
	got, err := Character(characterContext())
	if err != nil {
		t.Fatalf("Character: %v", err)
	}
	if string(got) != wantCharacterPage {
		t.Errorf("rendered page mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, wantCharacterPage)
	}
}

func TestCharacter_Deterministic(t *testing.T) {
	ctx := characterContext()
	a, err := Character(ctx)
	if err != nil {
		t.Fatalf("Character: %v", err)
	}
	b, err := Character(ctx)
	if err != nil {
		t.Fatalf("Character: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two renders of the same context differ")
	}
}

// Rendering then parsing must reproduce the editable half exactly: that is
// what makes a no-op ingest of a generated page possible.
func TestCharacter_RoundTripsThroughParse(t *testing.T) {
	page, err := Character(characterContext())
	if err != nil {
		t.Fatalf("Character: %v", err)
	}

	snap := resolver.NewSnapshot([]models.Entity{
		{ID: 2, Category: models.CategoryCharacter, Slug: "marcus-vale", DisplayName: "Marcus Vale"},
		{ID: 3, Category: models.CategoryCharacter, Slug: "known-person", DisplayName: "Known Person"},
	})
	schema, _ := category.ForCategory(models.CategoryCharacter)

	sm, ds := parse.Parse(page, schema, snap)
	if diag.HasErrors(ds) {
		t.Fatalf("generated page does not parse cleanly: %+v", ds)
	}
	if sm.Section("Overview").Prose != characterContext().Overview {
		t.Errorf("prose = %q", sm.Section("Overview").Prose)
	}
	rel := sm.Section("Relationships")
	if len(rel.Refs) != 2 || rel.Refs[0].ID != 2 || rel.Refs[0].Note != "rival" {
		t.Errorf("refs = %+v", rel.Refs)
	}
	based := sm.Section("Based On")
	if len(based.Entries) != 2 || based.Entries[1].Note != "only the temper" {
		t.Errorf("entries = %+v", based.Entries)
	}
	voice := sm.Section("Voice")
	if len(voice.Quotes) != 1 || voice.Quotes[0].AttributionID != 2 || voice.Quotes[0].Mode != "verbatim" {
		t.Errorf("quotes = %+v", voice.Quotes)
	}
	if sm.Section("Appearances") != nil {
		t.Error("generated section leaked into the editable half")
	}
}

func TestScene_ActAndSections(t *testing.T) {
	ctx := &build.SceneContext{
		Slug:    "night-crossing",
		Title:   "Night Crossing",
		HasAct:  true,
		Act:     2,
		Summary: "Anna crosses the harbor at night.",
		Participants: []build.RefItem{
			{Display: "Anna Reyes"},
			{Display: "Marcus Vale", Note: "pursuer"},
		},
		HasSetting: true,
		Setting:    []build.RefItem{{Display: "The Harbor"}},
		HasSources: true,
		Sources: []build.StructuredItem{
			{Kind: "Interview", Display: "Interview Tape", Note: "tape 4, side B"},
		},
		HasNeighbors: true,
		Neighbors:    []build.RefItem{{Display: "Aftermath", Note: "1 shared character"}},
	}

	got, err := Scene(ctx)
	if err != nil {
		t.Fatalf("Scene: %v", err)
	}
	want := `---
category: scene
slug: night-crossing
title: Night Crossing
act: 2
---

# Night Crossing

## Summary
Anna crosses the harbor at night.

## Participants
- [[Anna Reyes]]
- [[Marcus Vale]] — pursuer

## Setting
- [[The Harbor]]

## Sources
**Interview:** [[Interview Tape]] — tape 4, side B

<!-- canon:generated -->

## Connected Scenes
- [[Aftermath]] — 1 shared character
`
	if string(got) != want {
		t.Errorf("rendered page mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestScene_OmitsEmptyOptionalSections(t *testing.T) {
	ctx := &build.SceneContext{
		Slug:         "sparse",
		Title:        "Sparse",
		Summary:      "Nothing much happens.",
		Participants: []build.RefItem{{Display: "Anna Reyes"}},
	}
	got, err := Scene(ctx)
	if err != nil {
		t.Fatalf("Scene: %v", err)
	}
	for _, heading := range []string{"## Setting", "## Sources", "## Connected Scenes", "act:"} {
		if bytes.Contains(got, []byte(heading)) {
			t.Errorf("empty section %q should be omitted:\n%s", heading, got)
		}
	}
}

func TestLocation_LayoutTiers(t *testing.T) {
	base := build.LocationContext{
		Slug:     "harbor",
		Title:    "The Harbor",
		Overview: "Cranes and fog.",
	}

	inline := base
	inline.HasScenes = true
	inline.SceneLayout = build.LayoutInline
	inline.SceneInline = "[[Scene A]], [[Scene B]]"
	got, err := Location(&inline)
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if !bytes.Contains(got, []byte("## Scenes Set Here\n[[Scene A]], [[Scene B]]\n")) {
		t.Errorf("inline tier:\n%s", got)
	}

	list := base
	list.HasScenes = true
	list.SceneLayout = build.LayoutList
	list.Scenes = []build.RefItem{{Display: "Scene A"}, {Display: "Scene B"}}
	got, err = Location(&list)
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if !bytes.Contains(got, []byte("## Scenes Set Here\n- [[Scene A]]\n- [[Scene B]]\n")) {
		t.Errorf("list tier:\n%s", got)
	}

	over := base
	over.HasScenes = true
	over.SceneLayout = build.LayoutOverflow
	over.SceneCount = 15
	over.SceneOverflow = "15 scenes are set here. See [[Index]] for the full list."
	got, err = Location(&over)
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if !bytes.Contains(got, []byte("## Scenes Set Here\n15 scenes are set here.")) {
		t.Errorf("overflow tier:\n%s", got)
	}
	if bytes.Contains(got, []byte("- [[")) {
		t.Errorf("overflow tier must not list scenes:\n%s", got)
	}
}

func TestIndex(t *testing.T) {
	ctx := &build.IndexContext{
		Groups: []build.IndexGroup{
			{Heading: "Characters", Entries: []build.RefItem{{Display: "Anna Reyes"}, {Display: "Marcus Vale"}}},
			{Heading: "Locations", Entries: []build.RefItem{{Display: "The Harbor"}}},
			{Heading: "Scenes"},
		},
	}
	got, err := Index(ctx)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	want := `# Index

<!-- canon:generated -->

## Characters
- [[Anna Reyes]]
- [[Marcus Vale]]

## Locations
- [[The Harbor]]

## Scenes
`
	if string(got) != want {
		t.Errorf("index mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}
