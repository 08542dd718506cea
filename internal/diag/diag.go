// Package diag defines the structured diagnostic format shared by the parser
// and all validation layers, and the wire format consumed by editors.
package diag

import "sort"

// Severity classifies the impact level of a diagnostic.
type Severity string

const (
	// SeverityError blocks ingestion of the page that produced it.
	SeverityError Severity = "error"
	// SeverityWarning indicates a condition that should be reviewed but never
	// blocks ingestion.
	SeverityWarning Severity = "warning"
	// SeverityInfo is advisory.
	SeverityInfo Severity = "info"
	// SeverityHint is a low-priority suggestion.
	SeverityHint Severity = "hint"
)

// Code identifies the rule that produced a diagnostic. Codes are stable and
// namespaced so consumers can filter on them.
type Code string

const (
	CodeUnresolvedReference    Code = "UNRESOLVED_REFERENCE"
	CodeAmbiguousReference     Code = "AMBIGUOUS_REFERENCE"
	CodeInvalidEnumValue       Code = "INVALID_ENUM_VALUE"
	CodeMissingRequiredSection Code = "MISSING_REQUIRED_SECTION"
	CodeEmptySection           Code = "EMPTY_SECTION"
	CodeEmptyQuote             Code = "EMPTY_QUOTE"
	CodeDuplicateEntry         Code = "DUPLICATE_ENTRY"
	CodeOrphanRelation         Code = "ORPHAN_RELATION"
	CodeUnknownSection         Code = "UNKNOWN_SECTION"
	CodeUnparseableEntry       Code = "UNPARSEABLE_ENTRY"
	CodeMalformedFrontmatter   Code = "MALFORMED_FRONTMATTER"
	CodeSuppressedByTombstone  Code = "SUPPRESSED_BY_TOMBSTONE"
)

// Span locates a diagnostic within a page. Lines and columns are 1-based.
type Span struct {
	Line      int `json:"line"`
	Column    int `json:"column"`
	EndLine   int `json:"end_line"`
	EndColumn int `json:"end_column"`
}

// LineSpan returns a span covering the whole of one line.
func LineSpan(line, width int) Span {
	if width < 1 {
		width = 1
	}
	return Span{Line: line, Column: 1, EndLine: line, EndColumn: width + 1}
}

// Diagnostic is a single structured finding.
type Diagnostic struct {
	Path string `json:"path,omitempty"`
	Span
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
}

// New creates a diagnostic at the given span.
func New(sev Severity, code Code, span Span, msg string) Diagnostic {
	return Diagnostic{Span: span, Severity: sev, Code: code, Message: msg}
}

// Sort orders diagnostics by line, then column, in place.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Line != ds[j].Line {
			return ds[i].Line < ds[j].Line
		}
		return ds[i].Column < ds[j].Column
	})
}

// HasErrors reports whether any diagnostic carries error severity.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics at the given severity.
func Count(ds []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// FileDiagnostics groups diagnostics by page path; this is the wire format
// consumed by the editor integration.
type FileDiagnostics struct {
	Path        string       `json:"path"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// GroupByPath converts a flat diagnostic list into the wire format. Paths are
// emitted in ascending order; diagnostics keep their (line, column) order.
func GroupByPath(ds []Diagnostic) []FileDiagnostics {
	byPath := make(map[string][]Diagnostic)
	var paths []string
	for _, d := range ds {
		if _, ok := byPath[d.Path]; !ok {
			paths = append(paths, d.Path)
		}
		byPath[d.Path] = append(byPath[d.Path], d)
	}
	sort.Strings(paths)
	out := make([]FileDiagnostics, 0, len(paths))
	for _, p := range paths {
		group := byPath[p]
		Sort(group)
		out = append(out, FileDiagnostics{Path: p, Diagnostics: group})
	}
	return out
}
