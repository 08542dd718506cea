// Package category defines the per-category page schemas: which sections a
// page may carry, how each section is typed, and which closed value sets apply
// to its entries. Dispatch is a static lookup table keyed by category tag.
package category

import (
	"path"

	"github.com/veslund/canon/internal/models"
)

// SectionKind types a page section. The kind is fixed per heading name by the
// category schema, never inferred from content.
type SectionKind string

const (
	// KindProse is opaque text, stored and restored verbatim.
	KindProse SectionKind = "prose"
	// KindReferences is an ordered list of entity references with optional
	// free-text annotations.
	KindReferences SectionKind = "references"
	// KindStructured is a block of typed entries (kind/qualifier + reference
	// + optional note).
	KindStructured SectionKind = "structured"
	// KindQuote is one or more attributed quotations with a mode tag.
	KindQuote SectionKind = "quote"
)

// SectionSchema describes one named section of a page.
type SectionSchema struct {
	Heading  string
	Kind     SectionKind
	Required bool

	// RelationName is the datastore relation backing reference, structured,
	// and quote sections.
	RelationName string

	// Qualifiers is the closed value set for "**[[Ref]]** · qualifier" entries.
	Qualifiers []string
	// EntryKinds is the closed value set for "**Kind:** [[Ref]]" entries.
	EntryKinds []string
	// QuoteModes is the closed value set for quote attribution modes.
	QuoteModes []string
}

// Schema is the full page contract for one entity category.
type Schema struct {
	Category models.Category
	// Dir is the directory (relative to the canon root) holding this
	// category's pages.
	Dir string
	// AttrKeys lists frontmatter keys (beyond category/slug/title) that are
	// editable entity attributes.
	AttrKeys []string
	Sections []SectionSchema
}

// Section returns the schema for the given heading, or nil when the heading is
// not part of this category's contract.
func (s *Schema) Section(heading string) *SectionSchema {
	for i := range s.Sections {
		if s.Sections[i].Heading == heading {
			return &s.Sections[i]
		}
	}
	return nil
}

// Closed value sets shared by the demonstration catalog.
var (
	BasedOnQualifiers = []string{"primary", "composite", "inspiration"}
	SourceKinds       = []string{"Interview", "Archive", "Research"}
	QuoteModes        = []string{"verbatim", "paraphrase", "disputed"}
)

var registry = map[models.Category]*Schema{
	models.CategoryCharacter: {
		Category: models.CategoryCharacter,
		Dir:      "characters",
		Sections: []SectionSchema{
			{Heading: "Overview", Kind: KindProse, Required: true},
			{Heading: "Relationships", Kind: KindReferences, RelationName: "relationship"},
			{Heading: "Based On", Kind: KindStructured, RelationName: "based_on", Qualifiers: BasedOnQualifiers},
			{Heading: "Voice", Kind: KindQuote, RelationName: "voice", QuoteModes: QuoteModes},
		},
	},
	models.CategoryLocation: {
		Category: models.CategoryLocation,
		Dir:      "locations",
		Sections: []SectionSchema{
			{Heading: "Overview", Kind: KindProse, Required: true},
		},
	},
	models.CategoryScene: {
		Category: models.CategoryScene,
		Dir:      "scenes",
		AttrKeys: []string{"act"},
		Sections: []SectionSchema{
			{Heading: "Summary", Kind: KindProse, Required: true},
			{Heading: "Participants", Kind: KindReferences, RelationName: "participant", Required: true},
			{Heading: "Setting", Kind: KindReferences, RelationName: "setting"},
			{Heading: "Sources", Kind: KindStructured, RelationName: "source", EntryKinds: SourceKinds},
		},
	},
}

// ForCategory returns the schema registered for c.
func ForCategory(c models.Category) (*Schema, bool) {
	s, ok := registry[c]
	return s, ok
}

// All returns every registered schema in a stable order.
func All() []*Schema {
	return []*Schema{
		registry[models.CategoryCharacter],
		registry[models.CategoryLocation],
		registry[models.CategoryScene],
	}
}

// PagePath returns the canonical page path for an entity: a deterministic
// function of category and slug.
func PagePath(c models.Category, slugged string) string {
	s, ok := registry[c]
	if !ok {
		return path.Join("misc", slugged+".md")
	}
	return path.Join(s.Dir, slugged+".md")
}

// IndexPath is the path of the generated index page.
const IndexPath = "index.md"
