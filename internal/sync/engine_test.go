package sync

import (
	"io"
	"log/slog"
	"testing"

	"github.com/veslund/canon/internal/store"
	"github.com/veslund/canon/internal/testutil"
)

func testEngine(t *testing.T) (*Engine, string, *store.Store) {
	t.Helper()
	st := testutil.TestStore(t)
	root, files := testutil.TestCanon(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(st, files, logger, Options{Workers: 2, Actor: "test"})
	return e, root, st
}

const annaPage = `---
category: character
slug: anna-reyes
title: Anna Reyes
---

# Anna Reyes

## Overview
Keeps two notebooks: one honest, one for show.

## Relationships
- [[Marcus Vale]] — rival
`

const annaPageAlone = `---
category: character
slug: anna-reyes
title: Anna Reyes
---

# Anna Reyes

## Overview
Keeps two notebooks: one honest, one for show.
`

const marcusPage = `---
category: character
slug: marcus-vale
title: Marcus Vale
---

# Marcus Vale

## Overview
Never loses, only reschedules.
`

func pageResult(t *testing.T, b *BatchResult, path string) PageResult {
	t.Helper()
	for _, p := range b.Pages {
		if p.Path == path {
			return p
		}
	}
	t.Fatalf("no result for %s in batch: %+v", path, b.Pages)
	return PageResult{}
}
