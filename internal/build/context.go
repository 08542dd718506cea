// Package build queries the datastore per entity and computes the plain,
// template-agnostic context structures the renderer consumes. All querying and
// arithmetic happens here; templates only iterate and print.
package build

// Visibility tiers. Aggregate output is omitted from the context, never
// rendered-then-hidden.
const (
	// minSharedScenes is the minimum co-occurrence count for a collaborator
	// to be listed.
	minSharedScenes = 3
	// minAppearances is the minimum total scene count for the collaborators
	// section to exist at all.
	minAppearances = 5
)

// Layout tiers for scale-dependent list rendering. The thresholds live here;
// templates only switch on the enum.
const (
	inlineMax = 3
	listMax   = 12
)

// Layout selects how a generated list is shaped.
type Layout string

const (
	LayoutInline   Layout = "inline"
	LayoutList     Layout = "list"
	LayoutOverflow Layout = "overflow"
)

// IsInline reports the inline tier. Exposed as a method so templates can
// switch tiers without comparing typed strings.
func (l Layout) IsInline() bool { return l == LayoutInline }

// IsList reports the bulleted tier.
func (l Layout) IsList() bool { return l == LayoutList }

// IsOverflow reports the overflow tier.
func (l Layout) IsOverflow() bool { return l == LayoutOverflow }

func layoutFor(n int) Layout {
	switch {
	case n <= inlineMax:
		return LayoutInline
	case n <= listMax:
		return LayoutList
	default:
		return LayoutOverflow
	}
}

// RefItem is one rendered reference: display name plus optional annotation.
type RefItem struct {
	Display string
	Note    string
}

// StructuredItem is one rendered structured-block entry.
type StructuredItem struct {
	Kind      string
	Qualifier string
	Display   string
	Note      string
}

// QuoteItem is one rendered quote.
type QuoteItem struct {
	BodyLines   []string
	Attribution string
	Mode        string
	Note        string
}

// CollabItem is one frequent collaborator with a precomputed count label.
type CollabItem struct {
	Display    string
	CountLabel string
}

// CharacterContext feeds the character template.
type CharacterContext struct {
	Slug  string
	Title string

	Overview string

	HasRelationships bool
	Relationships    []RefItem

	HasBasedOn bool
	BasedOn    []StructuredItem

	HasVoice bool
	Voice    []QuoteItem

	// Generated half.
	AppearanceLine   string
	HasCollaborators bool
	Collaborators    []CollabItem
}

// SceneContext feeds the scene template.
type SceneContext struct {
	Slug  string
	Title string

	HasAct bool
	Act    int

	Summary string

	Participants []RefItem

	HasSetting bool
	Setting    []RefItem

	HasSources bool
	Sources    []StructuredItem

	// Generated half: scenes sharing at least one participant.
	HasNeighbors bool
	Neighbors    []RefItem
}

// LocationContext feeds the location template.
type LocationContext struct {
	Slug  string
	Title string

	Overview string

	// Generated half.
	HasScenes     bool
	SceneLayout   Layout
	SceneInline   string // precomputed "[[A]], [[B]]" line for the inline tier
	SceneOverflow string // precomputed summary line for the overflow tier
	Scenes        []RefItem
	SceneCount    int

	HasVisitors bool
	Visitors    []RefItem
}

// IndexGroup is one category block on the index page.
type IndexGroup struct {
	Heading string
	Entries []RefItem
}

// IndexContext feeds the generated index page.
type IndexContext struct {
	Groups []IndexGroup
}
