// Package validate gates ingestion with three independent layers that share
// one diagnostic format: shape/enum checks (A), cross-field structure checks
// (B), and referential checks against a datastore snapshot (C). A and B need
// no datastore, so dry-run contexts can skip C entirely.
package validate

import (
	"fmt"

	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/parse"
)

// Snapshot answers whether an entity id is live. *resolver.Snapshot satisfies
// it; tests can use a plain map wrapper.
type Snapshot interface {
	Exists(models.EntityID) bool
}

// Validate runs all applicable layers and returns the merged diagnostics
// sorted by (line, column). A nil snapshot skips the referential layer.
// Ingestion is permitted only when the result contains zero errors.
func Validate(sm *parse.SectionMap, schema *category.Schema, snap Snapshot) []diag.Diagnostic {
	ds := ValidateShape(sm, schema)
	ds = append(ds, ValidateStructure(sm, schema)...)
	if snap != nil {
		ds = append(ds, ValidateReferences(sm, snap)...)
	}
	diag.Sort(ds)
	return ds
}

// ValidateShape is Layer A: every field with a closed value set is checked
// against its authoritative enumeration. Unknown values are errors, with a
// "did you mean" suggestion when a close match exists.
func ValidateShape(sm *parse.SectionMap, schema *category.Schema) []diag.Diagnostic {
	var ds []diag.Diagnostic
	for _, sec := range sm.Sections {
		ss := schema.Section(sec.Name)
		if ss == nil {
			continue
		}
		for _, e := range sec.Entries {
			switch {
			case e.Qualifier != "":
				ds = appendEnumCheck(ds, e.Qualifier, ss.Qualifiers, "qualifier", sec.Name, e.Span)
			case e.Kind != "":
				ds = appendEnumCheck(ds, e.Kind, ss.EntryKinds, "entry kind", sec.Name, e.Span)
			}
		}
		for _, q := range sec.Quotes {
			if q.Mode == "" {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeInvalidEnumValue, q.Span,
					fmt.Sprintf("quote in %q has no mode tag; expected one of %s", sec.Name, enumList(ss.QuoteModes))))
				continue
			}
			ds = appendEnumCheck(ds, q.Mode, ss.QuoteModes, "mode", sec.Name, q.Span)
		}
	}
	return ds
}

func appendEnumCheck(ds []diag.Diagnostic, value string, valid []string, field, section string, span diag.Span) []diag.Diagnostic {
	if len(valid) == 0 {
		return append(ds, diag.New(diag.SeverityError, diag.CodeInvalidEnumValue, span,
			fmt.Sprintf("section %q does not accept a %s", section, field)))
	}
	for _, v := range valid {
		if v == value {
			return ds
		}
	}
	msg := fmt.Sprintf("invalid %s %q in %q; expected one of %s", field, value, section, enumList(valid))
	if sug := closest(value, valid); sug != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", sug)
	}
	return append(ds, diag.New(diag.SeverityError, diag.CodeInvalidEnumValue, span, msg))
}

// ValidateStructure is Layer B: cross-field rules for the category — required
// sections present and non-empty, quotes carrying either literal content or a
// paraphrase note.
func ValidateStructure(sm *parse.SectionMap, schema *category.Schema) []diag.Diagnostic {
	var ds []diag.Diagnostic
	for i := range schema.Sections {
		ss := &schema.Sections[i]
		sec := sm.Section(ss.Heading)
		if sec == nil {
			if ss.Required {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeMissingRequiredSection,
					diag.LineSpan(1, 1),
					fmt.Sprintf("required section %q is missing", ss.Heading)))
			}
			continue
		}
		if sectionEmpty(sec) {
			sev := diag.SeverityWarning
			if ss.Required {
				sev = diag.SeverityError
			}
			ds = append(ds, diag.New(sev, diag.CodeEmptySection, sec.Span,
				fmt.Sprintf("section %q is empty", ss.Heading)))
		}
		for _, q := range sec.Quotes {
			if q.Body == "" && q.Note == "" {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeEmptyQuote, q.Span,
					"quote needs either literal content or a paraphrase note"))
			}
		}
	}
	return ds
}

func sectionEmpty(sec *parse.Section) bool {
	switch sec.Kind {
	case category.KindProse:
		return sec.Prose == ""
	case category.KindReferences:
		return len(sec.Refs) == 0
	case category.KindStructured:
		return len(sec.Entries) == 0
	case category.KindQuote:
		return len(sec.Quotes) == 0
	}
	return false
}

// ValidateReferences is Layer C: every resolved reference must point at a live
// entity in the snapshot, and no list section may contain the same entity
// twice.
func ValidateReferences(sm *parse.SectionMap, snap Snapshot) []diag.Diagnostic {
	var ds []diag.Diagnostic
	for _, sec := range sm.Sections {
		seen := make(map[models.EntityID]bool)
		check := func(ref parse.RefEntry) {
			if ref.ID == 0 {
				return
			}
			if !snap.Exists(ref.ID) {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeOrphanRelation, ref.Span,
					fmt.Sprintf("reference %q points at a deleted or missing entity", ref.Display)))
				return
			}
			if seen[ref.ID] {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeDuplicateEntry, ref.Span,
					fmt.Sprintf("%q appears more than once in %q", ref.Display, sec.Name)))
				return
			}
			seen[ref.ID] = true
		}
		for _, r := range sec.Refs {
			check(r)
		}
		for _, e := range sec.Entries {
			check(e.Ref)
		}
		for _, q := range sec.Quotes {
			// Attributions may repeat; only existence is checked.
			if q.AttributionID != 0 && !snap.Exists(q.AttributionID) {
				ds = append(ds, diag.New(diag.SeverityError, diag.CodeOrphanRelation, q.Span,
					fmt.Sprintf("attribution %q points at a deleted or missing entity", q.Attribution)))
			}
		}
	}
	return ds
}

func enumList(valid []string) string {
	out := ""
	for i, v := range valid {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// closest returns the valid value within edit distance 1 of value, or "".
func closest(value string, valid []string) string {
	for _, v := range valid {
		if editDistanceAtMostOne(value, v) {
			return v
		}
	}
	return ""
}

// editDistanceAtMostOne reports whether a and b differ by at most one edit
// (insert, delete, or substitute).
func editDistanceAtMostOne(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb)-len(ra) > 1 {
		return false
	}
	i, j, edits := 0, 0, 0
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(ra) == len(rb) {
			i++ // substitution
		}
		j++ // insertion into the shorter string
	}
	edits += len(rb) - j
	return edits <= 1
}
