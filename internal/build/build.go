package build

import (
	"fmt"
	"sort"
	"strings"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/store"
)

// BuildCharacter assembles the render context for one character.
func BuildCharacter(st store.Datastore, id models.EntityID) (*CharacterContext, error) {
	ent, err := liveEntity(st, id, models.CategoryCharacter)
	if err != nil {
		return nil, err
	}

	ctx := &CharacterContext{Slug: ent.Slug, Title: ent.DisplayName}

	ctx.Overview, err = st.Prose(id, "Overview")
	if err != nil {
		return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
	}

	rels, err := st.RelatedOf("relationship", id)
	if err != nil {
		return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
	}
	for _, r := range rels {
		ctx.Relationships = append(ctx.Relationships, RefItem{Display: r.DisplayName, Note: r.Relation.Note})
	}
	ctx.HasRelationships = len(ctx.Relationships) > 0

	based, err := st.RelatedOf("based_on", id)
	if err != nil {
		return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
	}
	for _, r := range based {
		ctx.BasedOn = append(ctx.BasedOn, StructuredItem{
			Qualifier: r.Relation.Qualifier,
			Display:   r.DisplayName,
			Note:      r.Relation.Note,
		})
	}
	ctx.HasBasedOn = len(ctx.BasedOn) > 0

	quotes, err := st.Quotes(id)
	if err != nil {
		return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
	}
	for _, q := range quotes {
		item := QuoteItem{BodyLines: strings.Split(q.Body, "\n"), Mode: q.Mode, Note: q.Note}
		if q.AttributionID != 0 {
			attr, err := st.GetEntity(q.AttributionID)
			if err != nil {
				return nil, fmt.Errorf("build: character %q: quote attribution: %w", ent.Slug, err)
			}
			item.Attribution = attr.DisplayName
		}
		ctx.Voice = append(ctx.Voice, item)
	}
	ctx.HasVoice = len(ctx.Voice) > 0

	scenes, err := st.RelationsTo("participant", id)
	if err != nil {
		return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
	}
	ctx.AppearanceLine = appearanceLine(scenes)

	if len(scenes) >= minAppearances {
		co, err := st.CoOccurrences("participant", id)
		if err != nil {
			return nil, fmt.Errorf("build: character %q: %w", ent.Slug, err)
		}
		for _, c := range co {
			if c.Count < minSharedScenes {
				continue
			}
			ctx.Collaborators = append(ctx.Collaborators, CollabItem{
				Display:    c.DisplayName,
				CountLabel: countLabel(c.Count, "shared scene"),
			})
		}
	}
	ctx.HasCollaborators = len(ctx.Collaborators) > 0

	return ctx, nil
}

// BuildScene assembles the render context for one scene.
func BuildScene(st store.Datastore, id models.EntityID) (*SceneContext, error) {
	ent, err := liveEntity(st, id, models.CategoryScene)
	if err != nil {
		return nil, err
	}

	ctx := &SceneContext{Slug: ent.Slug, Title: ent.DisplayName}
	if act, ok := attrInt(ent.Attrs, "act"); ok {
		ctx.HasAct = true
		ctx.Act = act
	}

	ctx.Summary, err = st.Prose(id, "Summary")
	if err != nil {
		return nil, fmt.Errorf("build: scene %q: %w", ent.Slug, err)
	}

	parts, err := st.RelatedOf("participant", id)
	if err != nil {
		return nil, fmt.Errorf("build: scene %q: %w", ent.Slug, err)
	}
	for _, r := range parts {
		ctx.Participants = append(ctx.Participants, RefItem{Display: r.DisplayName, Note: r.Relation.Note})
	}

	settings, err := st.RelatedOf("setting", id)
	if err != nil {
		return nil, fmt.Errorf("build: scene %q: %w", ent.Slug, err)
	}
	for _, r := range settings {
		ctx.Setting = append(ctx.Setting, RefItem{Display: r.DisplayName, Note: r.Relation.Note})
	}
	ctx.HasSetting = len(ctx.Setting) > 0

	sources, err := st.RelatedOf("source", id)
	if err != nil {
		return nil, fmt.Errorf("build: scene %q: %w", ent.Slug, err)
	}
	for _, r := range sources {
		ctx.Sources = append(ctx.Sources, StructuredItem{
			Kind:    r.Relation.Qualifier,
			Display: r.DisplayName,
			Note:    r.Relation.Note,
		})
	}
	ctx.HasSources = len(ctx.Sources) > 0

	neighbors, err := st.SharedParents("participant", id)
	if err != nil {
		return nil, fmt.Errorf("build: scene %q: %w", ent.Slug, err)
	}
	for _, n := range neighbors {
		ctx.Neighbors = append(ctx.Neighbors, RefItem{
			Display: n.DisplayName,
			Note:    countLabel(n.Count, "shared character"),
		})
	}
	ctx.HasNeighbors = len(ctx.Neighbors) > 0

	return ctx, nil
}

// BuildLocation assembles the render context for one location.
func BuildLocation(st store.Datastore, id models.EntityID) (*LocationContext, error) {
	ent, err := liveEntity(st, id, models.CategoryLocation)
	if err != nil {
		return nil, err
	}

	ctx := &LocationContext{Slug: ent.Slug, Title: ent.DisplayName}

	ctx.Overview, err = st.Prose(id, "Overview")
	if err != nil {
		return nil, fmt.Errorf("build: location %q: %w", ent.Slug, err)
	}

	scenes, err := st.RelationsTo("setting", id)
	if err != nil {
		return nil, fmt.Errorf("build: location %q: %w", ent.Slug, err)
	}
	for _, s := range scenes {
		ctx.Scenes = append(ctx.Scenes, RefItem{Display: s.DisplayName})
	}
	ctx.SceneCount = len(ctx.Scenes)
	ctx.HasScenes = ctx.SceneCount > 0
	ctx.SceneLayout = layoutFor(ctx.SceneCount)
	switch ctx.SceneLayout {
	case LayoutInline:
		ctx.SceneInline = inlineRefs(ctx.Scenes)
	case LayoutOverflow:
		ctx.SceneOverflow = fmt.Sprintf("%s are set here. See [[Index]] for the full list.",
			countLabel(ctx.SceneCount, "scene"))
	}

	seen := make(map[models.EntityID]bool)
	var visitors []RefItem
	for _, s := range scenes {
		parts, err := st.RelatedOf("participant", s.ID)
		if err != nil {
			return nil, fmt.Errorf("build: location %q: %w", ent.Slug, err)
		}
		for _, p := range parts {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			visitors = append(visitors, RefItem{Display: p.DisplayName})
		}
	}
	sort.Slice(visitors, func(i, j int) bool { return visitors[i].Display < visitors[j].Display })
	ctx.Visitors = visitors
	ctx.HasVisitors = len(visitors) > 0

	return ctx, nil
}

// BuildIndex assembles the context for the generated index page: every live
// entity grouped by category in catalog order.
func BuildIndex(st store.Datastore) (*IndexContext, error) {
	headings := map[models.Category]string{
		models.CategoryCharacter: "Characters",
		models.CategoryLocation:  "Locations",
		models.CategoryScene:     "Scenes",
	}

	ctx := &IndexContext{}
	for _, c := range []models.Category{models.CategoryCharacter, models.CategoryLocation, models.CategoryScene} {
		ents, err := st.ListEntities(c)
		if err != nil {
			return nil, fmt.Errorf("build: index: %w", err)
		}
		g := IndexGroup{Heading: headings[c]}
		for _, e := range ents {
			g.Entries = append(g.Entries, RefItem{Display: e.DisplayName})
		}
		ctx.Groups = append(ctx.Groups, g)
	}
	return ctx, nil
}

func liveEntity(st store.Datastore, id models.EntityID, want models.Category) (*models.Entity, error) {
	ent, err := st.GetEntity(id)
	if err != nil {
		return nil, fmt.Errorf("build: entity %d: %w", id, err)
	}
	if ent.Deleted() {
		return nil, fmt.Errorf("build: entity %q: %w", ent.Slug, apperr.ErrNotFound)
	}
	if ent.Category != want {
		return nil, fmt.Errorf("build: entity %q is %s, not %s", ent.Slug, ent.Category, want)
	}
	return ent, nil
}

// appearanceLine summarizes a character's scene appearances with a per-act
// breakdown, e.g. "Appears in 6 scenes (Act I: 2 · Act II: 4).".
func appearanceLine(scenes []store.RelatedEntity) string {
	n := len(scenes)
	if n == 0 {
		return "Appears in no scenes yet."
	}

	byAct := make(map[int]int)
	var acts []int
	for _, s := range scenes {
		act, ok := attrInt(s.Attrs, "act")
		if !ok {
			continue
		}
		if byAct[act] == 0 {
			acts = append(acts, act)
		}
		byAct[act]++
	}
	sort.Ints(acts)

	line := fmt.Sprintf("Appears in %s", countLabel(n, "scene"))
	if len(acts) > 0 {
		var parts []string
		for _, a := range acts {
			parts = append(parts, fmt.Sprintf("%s: %d", actLabel(a), byAct[a]))
		}
		line += " (" + strings.Join(parts, " · ") + ")"
	}
	return line + "."
}

var romans = []string{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"}

func actLabel(n int) string {
	if n > 0 && n < len(romans) {
		return "Act " + romans[n]
	}
	return fmt.Sprintf("Act %d", n)
}

func countLabel(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// inlineRefs joins references into a single wikilinked line for the inline
// layout tier.
func inlineRefs(items []RefItem) string {
	var parts []string
	for _, it := range items {
		parts = append(parts, "[["+it.Display+"]]")
	}
	return strings.Join(parts, ", ")
}

// attrInt reads an integer attribute. Values decoded from the attrs JSON
// column arrive as float64.
func attrInt(attrs map[string]any, key string) (int, bool) {
	switch v := attrs[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
