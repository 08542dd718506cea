package sync

import (
	"context"
	"testing"

	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/testutil"
)

func TestCheckPage_DryRun(t *testing.T) {
	e, root, st := testEngine(t)
	testutil.WritePage(t, root, "characters/anna-reyes.md", annaPageAlone)
	if _, err := e.Ingest(context.Background(), nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	testutil.WritePage(t, root, "characters/draft.md", `---
category: character
slug: draft
title: Draft
---

# Draft

## Overview
Mentions [[Ghost Person]] inline is fine, prose is opaque.

## Relationships
- [[Ghost Person]]
- [[Anna Reyes]]
`)

	fd, err := e.CheckPage("characters/draft.md")
	if err != nil {
		t.Fatalf("CheckPage: %v", err)
	}
	if fd.Path != "characters/draft.md" {
		t.Errorf("path = %q", fd.Path)
	}
	if n := diag.Count(fd.Diagnostics, diag.SeverityError); n != 1 {
		t.Fatalf("errors = %d, diagnostics = %+v", n, fd.Diagnostics)
	}
	if fd.Diagnostics[0].Code != diag.CodeUnresolvedReference {
		t.Errorf("code = %s", fd.Diagnostics[0].Code)
	}

	// Dry run: the datastore was not touched.
	if _, err := st.GetEntityBySlug("draft"); err == nil {
		t.Error("dry run created an entity")
	}
}

func TestCheckPage_OutsideTree(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.CheckPage("index.md"); err == nil {
		t.Error("expected error for non-category path")
	}
}
