// Package parse turns edited page text back into a per-section structured
// representation. Parsing is best-effort: every failure becomes a diagnostic
// and the partial SectionMap is always returned, so a single typo never hides
// the rest of a page.
package parse

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/resolver"
)

// GeneratedMarker separates the editable half of a page from generated output.
// Everything below the marker is never read back.
const GeneratedMarker = "<!-- canon:generated -->"

// SectionMap is the structured representation of a page's editable half.
type SectionMap struct {
	Category models.Category
	Slug     string
	Title    string
	// Attrs holds editable frontmatter attributes declared by the schema
	// (e.g. a scene's act).
	Attrs    map[string]any
	Sections []*Section
}

// Section returns the named section, or nil when the page does not carry it.
func (sm *SectionMap) Section(name string) *Section {
	for _, s := range sm.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Section is one typed region of a page.
type Section struct {
	Name string
	Kind category.SectionKind
	Span diag.Span

	// Prose is set for KindProse sections, verbatim.
	Prose string
	// Refs is set for KindReferences sections; only resolved entries appear.
	Refs []RefEntry
	// Entries is set for KindStructured sections.
	Entries []StructuredEntry
	// Quotes is set for KindQuote sections.
	Quotes []QuoteEntry
}

// RefEntry is one resolved inline reference.
type RefEntry struct {
	ID      models.EntityID
	Display string // name as written on the page
	Note    string
	Span    diag.Span
}

// StructuredEntry is one entry of a structured block.
type StructuredEntry struct {
	// Kind is set for "**Kind:** [[Ref]]" entries.
	Kind string
	// Qualifier is set for "**[[Ref]]** · qualifier" entries.
	Qualifier string
	Ref       RefEntry
	Note      string
	Span      diag.Span
}

// QuoteEntry is one attributed quotation.
type QuoteEntry struct {
	Body          string
	AttributionID models.EntityID
	Attribution   string // name as written; empty when the line had no reference
	Mode          string
	Note          string
	Span          diag.Span
}

type frontmatter struct {
	raw      map[string]any
	category string
	slug     string
	title    string
}

// Parse builds the SectionMap for pageText against the category schema. The
// resolver snapshot is used for inline reference resolution. Diagnostics of
// any severity may be returned alongside a usable SectionMap; callers gate on
// error severity, not on the map being nil.
func Parse(pageText []byte, schema *category.Schema, snap *resolver.Snapshot) (*SectionMap, []diag.Diagnostic) {
	var ds []diag.Diagnostic

	lines := strings.Split(string(pageText), "\n")

	fm, bodyStart, fmDiags := splitFrontmatter(lines)
	ds = append(ds, fmDiags...)

	sm := &SectionMap{
		Category: schema.Category,
		Slug:     fm.slug,
		Title:    fm.title,
		Attrs:    pickAttrs(fm.raw, schema.AttrKeys),
	}

	if fm.category != "" && fm.category != string(schema.Category) {
		ds = append(ds, diag.New(diag.SeverityError, diag.CodeMalformedFrontmatter,
			diag.LineSpan(1, 3),
			"frontmatter category "+fm.category+" does not match page location "+string(schema.Category)))
	}

	// Everything below the generated marker is renderer output, never parsed.
	end := len(lines)
	for i := bodyStart; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == GeneratedMarker {
			end = i
			break
		}
	}

	// Split the editable half into sections at "## " headings. The H1 title
	// line and any preamble prose are skipped.
	type rawSection struct {
		name       string
		start, end int // line index range of content, exclusive of heading
		headLine   int
	}
	var raws []rawSection
	for i := bodyStart; i < end; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "## ") {
			continue
		}
		if len(raws) > 0 {
			raws[len(raws)-1].end = i
		}
		raws = append(raws, rawSection{
			name:     strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")),
			start:    i + 1,
			end:      end,
			headLine: i + 1, // 1-based
		})
	}

	for _, rs := range raws {
		ss := schema.Section(rs.name)
		if ss == nil {
			ds = append(ds, diag.New(diag.SeverityInfo, diag.CodeUnknownSection,
				diag.LineSpan(rs.headLine, len(lines[rs.headLine-1])),
				"unknown section \""+rs.name+"\" is not part of the "+string(schema.Category)+" page contract; content ignored"))
			continue
		}
		sec := &Section{
			Name: ss.Heading,
			Kind: ss.Kind,
			Span: diag.Span{Line: rs.headLine, Column: 1, EndLine: rs.end, EndColumn: 1},
		}
		body := lines[rs.start:rs.end]
		switch ss.Kind {
		case category.KindProse:
			sec.Prose = extractProse(body)
		case category.KindReferences:
			sec.Refs = append(sec.Refs, extractRefs(body, rs.start, snap, &ds)...)
		case category.KindStructured:
			sec.Entries = append(sec.Entries, extractStructured(body, rs.start, snap, &ds)...)
		case category.KindQuote:
			sec.Quotes = append(sec.Quotes, extractQuotes(body, rs.start, snap, &ds)...)
		}
		sm.Sections = append(sm.Sections, sec)
	}

	diag.Sort(ds)
	return sm, ds
}

// Title peeks at a page's frontmatter title without full parsing. Returns ""
// when the page has no readable frontmatter.
func Title(pageText []byte) string {
	fm, _, _ := splitFrontmatter(strings.Split(string(pageText), "\n"))
	return fm.title
}

// splitFrontmatter reads an optional leading YAML frontmatter block and
// returns the line index where the body starts. Malformed YAML is reported as
// a diagnostic and the whole page is treated as body.
func splitFrontmatter(lines []string) (frontmatter, int, []diag.Diagnostic) {
	var fm frontmatter
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return fm, 0, nil
	}
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closing = i
			break
		}
	}
	if closing < 0 {
		return fm, 0, []diag.Diagnostic{diag.New(diag.SeverityError, diag.CodeMalformedFrontmatter,
			diag.LineSpan(1, 3), "frontmatter opened but never closed")}
	}

	block := strings.Join(lines[1:closing], "\n")
	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return fm, closing + 1, []diag.Diagnostic{diag.New(diag.SeverityError, diag.CodeMalformedFrontmatter,
			diag.Span{Line: 1, Column: 1, EndLine: closing + 1, EndColumn: 4}, "frontmatter is not valid YAML: "+err.Error())}
	}

	fm.raw = raw
	if v, ok := raw["category"].(string); ok {
		fm.category = v
	}
	if v, ok := raw["slug"].(string); ok {
		fm.slug = v
	}
	if v, ok := raw["title"].(string); ok {
		fm.title = v
	}
	return fm, closing + 1, nil
}

func pickAttrs(raw map[string]any, keys []string) map[string]any {
	if len(raw) == 0 || len(keys) == 0 {
		return nil
	}
	var out map[string]any
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if out == nil {
				out = make(map[string]any, len(keys))
			}
			out[k] = v
		}
	}
	return out
}
