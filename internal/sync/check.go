package sync

import (
	"fmt"

	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/parse"
	"github.com/veslund/canon/internal/resolver"
	"github.com/veslund/canon/internal/validate"
)

// CheckPage runs the full parse and validation pipeline on one page without
// committing anything. This is the dry-run surface behind the diagnostics API
// and the MCP check tool.
func (e *Engine) CheckPage(path string) (diag.FileDiagnostics, error) {
	schema, ok := categoryForPath(path)
	if !ok {
		return diag.FileDiagnostics{}, fmt.Errorf("sync: check: %q is not inside a category directory", path)
	}
	data, err := e.files.Read(path)
	if err != nil {
		return diag.FileDiagnostics{}, err
	}

	ents, err := e.st.AllEntities()
	if err != nil {
		return diag.FileDiagnostics{}, fmt.Errorf("sync: check: %w", err)
	}
	snap := resolver.NewSnapshot(ents)

	sm, ds := parse.Parse(data, schema, snap)
	ds = append(ds, validate.Validate(sm, schema, snap)...)
	diag.Sort(ds)
	return diag.FileDiagnostics{Path: path, Diagnostics: ds}, nil
}

// CheckText validates page text as if it lived at path, for callers that want
// diagnostics on unsaved content.
func (e *Engine) CheckText(path string, data []byte) (diag.FileDiagnostics, error) {
	schema, ok := categoryForPath(path)
	if !ok {
		return diag.FileDiagnostics{}, fmt.Errorf("sync: check: %q is not inside a category directory", path)
	}
	ents, err := e.st.AllEntities()
	if err != nil {
		return diag.FileDiagnostics{}, fmt.Errorf("sync: check: %w", err)
	}
	snap := resolver.NewSnapshot(ents)

	sm, ds := parse.Parse(data, schema, snap)
	ds = append(ds, validate.Validate(sm, schema, snap)...)
	diag.Sort(ds)
	return diag.FileDiagnostics{Path: path, Diagnostics: ds}, nil
}
