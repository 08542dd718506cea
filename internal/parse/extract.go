package parse

import (
	"regexp"
	"strings"

	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/resolver"
)

// noteSep separates an entry from its free-text note: "[[Ref]] — note".
const noteSep = " — "

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

	// **[[Ref]]** · qualifier( — note)?
	qualifiedEntryRe = regexp.MustCompile(`^\*\*\[\[(.+?)\]\]\*\*\s*·\s*([^\s—]+)\s*(?:—\s*(.+))?$`)
	// **Kind:** [[Ref]]( — note)?
	kindedEntryRe = regexp.MustCompile(`^\*\*([^:*]+):\*\*\s*\[\[(.+?)\]\]\s*(?:—\s*(.+))?$`)
	// — [[Ref]] · mode( — note)?
	attributionRe = regexp.MustCompile(`^—\s*\[\[(.+?)\]\]\s*(?:·\s*([^\s—]+))?\s*(?:—\s*(.+))?$`)
)

// extractProse returns the section text exactly as written, trimmed of leading
// and trailing blank lines only. Internal formatting is never reflowed.
func extractProse(body []string) string {
	start, end := 0, len(body)
	for start < end && strings.TrimSpace(body[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(body[end-1]) == "" {
		end--
	}
	return strings.Join(body[start:end], "\n")
}

// linkTarget strips an optional alias: [[Target|Alias]] -> Target.
func linkTarget(raw string) string {
	if i := strings.Index(raw, "|"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// resolveRef resolves name and appends a diagnostic on failure. The boolean
// reports whether the entry should be kept.
func resolveRef(name string, span diag.Span, snap *resolver.Snapshot, ds *[]diag.Diagnostic) (RefEntry, bool) {
	id, out := snap.Resolve(name)
	switch out {
	case resolver.Resolved:
		return RefEntry{ID: id, Display: name, Span: span}, true
	case resolver.Ambiguous:
		*ds = append(*ds, diag.New(diag.SeverityError, diag.CodeAmbiguousReference, span,
			"reference \""+name+"\" matches more than one entity; use its slug"))
	default:
		*ds = append(*ds, diag.New(diag.SeverityError, diag.CodeUnresolvedReference, span,
			"reference \""+name+"\" does not match any entity"))
	}
	return RefEntry{}, false
}

// extractRefs reads an ordered reference list: one "- [[Ref]]( — note)?" item
// per line. Resolution failures are reported and skipped; remaining items are
// still extracted.
func extractRefs(body []string, offset int, snap *resolver.Snapshot, ds *[]diag.Diagnostic) []RefEntry {
	var out []RefEntry
	for i, raw := range body {
		lineNo := offset + i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "- ") {
			*ds = append(*ds, diag.New(diag.SeverityWarning, diag.CodeUnparseableEntry,
				diag.LineSpan(lineNo, len(raw)), "expected a \"- [[Reference]]\" list item"))
			continue
		}
		item := strings.TrimPrefix(trimmed, "- ")
		m := wikilinkRe.FindStringSubmatchIndex(item)
		if m == nil {
			*ds = append(*ds, diag.New(diag.SeverityWarning, diag.CodeUnparseableEntry,
				diag.LineSpan(lineNo, len(raw)), "list item has no [[reference]]"))
			continue
		}
		name := linkTarget(item[m[2]:m[3]])
		col := strings.Index(raw, "[[") + 1
		span := diag.Span{Line: lineNo, Column: col, EndLine: lineNo, EndColumn: col + (m[1] - m[0])}

		note := ""
		rest := item[m[1]:]
		if j := strings.Index(rest, noteSep); j >= 0 {
			note = strings.TrimSpace(rest[j+len(noteSep):])
		}

		ref, ok := resolveRef(name, span, snap, ds)
		if !ok {
			continue
		}
		ref.Note = note
		out = append(out, ref)
	}
	return out
}

// extractStructured reads a structured block. Two entry shapes are accepted:
// "**[[Ref]]** · qualifier( — note)?" and "**Kind:** [[Ref]]( — note)?".
// Unmatched non-blank lines are warnings, not errors, since users may be
// mid-edit.
func extractStructured(body []string, offset int, snap *resolver.Snapshot, ds *[]diag.Diagnostic) []StructuredEntry {
	var out []StructuredEntry
	for i, raw := range body {
		lineNo := offset + i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		span := diag.LineSpan(lineNo, len(raw))

		if m := qualifiedEntryRe.FindStringSubmatch(trimmed); m != nil {
			ref, ok := resolveRef(linkTarget(m[1]), refSpan(raw, lineNo), snap, ds)
			if !ok {
				continue
			}
			out = append(out, StructuredEntry{
				Qualifier: m[2],
				Ref:       ref,
				Note:      strings.TrimSpace(m[3]),
				Span:      span,
			})
			continue
		}
		if m := kindedEntryRe.FindStringSubmatch(trimmed); m != nil {
			ref, ok := resolveRef(linkTarget(m[2]), refSpan(raw, lineNo), snap, ds)
			if !ok {
				continue
			}
			out = append(out, StructuredEntry{
				Kind: strings.TrimSpace(m[1]),
				Ref:  ref,
				Note: strings.TrimSpace(m[3]),
				Span: span,
			})
			continue
		}
		*ds = append(*ds, diag.New(diag.SeverityWarning, diag.CodeUnparseableEntry, span,
			"entry matches neither \"**[[Ref]]** · qualifier\" nor \"**Kind:** [[Ref]]\""))
	}
	return out
}

// extractQuotes reads quoted blocks: consecutive "> " lines form the body, a
// closing "— [[Ref]] · mode" line attributes it. Mode values are validated by
// the shape layer, not here.
func extractQuotes(body []string, offset int, snap *resolver.Snapshot, ds *[]diag.Diagnostic) []QuoteEntry {
	var out []QuoteEntry
	var quoteLines []string
	quoteStart := 0

	flush := func(attr RefEntry, attrName, mode, note string, endLine int) {
		startLine := quoteStart
		if startLine == 0 {
			startLine = endLine
		}
		out = append(out, QuoteEntry{
			Body:          strings.Join(quoteLines, "\n"),
			AttributionID: attr.ID,
			Attribution:   attrName,
			Mode:          mode,
			Note:          note,
			Span:          diag.Span{Line: startLine, Column: 1, EndLine: endLine, EndColumn: 1},
		})
		quoteLines = nil
		quoteStart = 0
	}

	for i, raw := range body {
		lineNo := offset + i + 1
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, ">"):
			if quoteStart == 0 {
				quoteStart = lineNo
			}
			quoteLines = append(quoteLines, strings.TrimSpace(strings.TrimPrefix(trimmed, ">")))
		case strings.HasPrefix(trimmed, "—"):
			m := attributionRe.FindStringSubmatch(trimmed)
			if m == nil {
				*ds = append(*ds, diag.New(diag.SeverityWarning, diag.CodeUnparseableEntry,
					diag.LineSpan(lineNo, len(raw)), "attribution line must be \"— [[Ref]] · mode\""))
				continue
			}
			name := linkTarget(m[1])
			attr, ok := resolveRef(name, refSpan(raw, lineNo), snap, ds)
			if !ok {
				// Keep the quote; it just loses its attribution id.
				attr = RefEntry{}
			}
			flush(attr, name, m[2], strings.TrimSpace(m[3]), lineNo)
		default:
			*ds = append(*ds, diag.New(diag.SeverityWarning, diag.CodeUnparseableEntry,
				diag.LineSpan(lineNo, len(raw)), "expected a \"> \" quote line or a \"— [[Ref]]\" attribution"))
		}
	}

	// Trailing quote lines without an attribution still form an entry; the
	// structure layer reports the missing pieces.
	if len(quoteLines) > 0 {
		flush(RefEntry{}, "", "", "", offset+len(body))
	}
	return out
}

// refSpan locates the first [[...]] on a raw line.
func refSpan(raw string, lineNo int) diag.Span {
	col := strings.Index(raw, "[[") + 1
	if col == 0 {
		return diag.LineSpan(lineNo, len(raw))
	}
	end := strings.Index(raw, "]]")
	if end < 0 {
		end = len(raw) - 2
	}
	return diag.Span{Line: lineNo, Column: col, EndLine: lineNo, EndColumn: end + 3}
}
