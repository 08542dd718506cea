// Package sync orchestrates the two halves of the pipeline: ingestion of
// edited pages into the datastore, and generation of canonical pages from
// datastore state. Each sync run is a batch; pages within a batch are
// independent and a failure in one never blocks the others.
package sync

import (
	"log/slog"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
)

// Outcome is the per-page result of a sync operation.
type Outcome string

const (
	// OutcomeCommitted means datastore or page state was changed.
	OutcomeCommitted Outcome = "committed"
	// OutcomeSkipped means the page was visited and already up to date.
	OutcomeSkipped Outcome = "skipped-unchanged"
	// OutcomeRejected means validation errors blocked the page; the
	// datastore was not touched for it.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means an infrastructure error (I/O, SQL) stopped the
	// page. Rerunning the batch is safe.
	OutcomeFailed Outcome = "failed"
)

// PageResult reports one page's fate within a batch.
type PageResult struct {
	Path        string            `json:"path"`
	Outcome     Outcome           `json:"outcome"`
	EntityID    models.EntityID   `json:"entity_id,omitempty"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
	Error       string            `json:"error,omitempty"`

	// removed holds the entities this page's edit severed a relation to.
	// Their generated aggregates are stale even though the entities
	// themselves were not written.
	removed []models.EntityID
}

// BatchResult aggregates a whole sync run. Batches are not atomic: each page
// commits or fails on its own.
type BatchResult struct {
	ID         string       `json:"id"`
	Mode       string       `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pages      []PageResult `json:"pages"`

	mu gosync.Mutex
}

func newBatch(mode string) *BatchResult {
	return &BatchResult{ID: uuid.NewString(), Mode: mode, StartedAt: time.Now().UTC()}
}

func (b *BatchResult) add(r PageResult) {
	b.mu.Lock()
	b.Pages = append(b.Pages, r)
	b.mu.Unlock()
}

func (b *BatchResult) finish() *BatchResult {
	b.FinishedAt = time.Now().UTC()
	sort.Slice(b.Pages, func(i, j int) bool { return b.Pages[i].Path < b.Pages[j].Path })
	return b
}

// Rejected reports whether any page in the batch was rejected.
func (b *BatchResult) Rejected() bool {
	for _, p := range b.Pages {
		if p.Outcome == OutcomeRejected {
			return true
		}
	}
	return false
}

// Count returns how many pages finished with the given outcome.
func (b *BatchResult) Count(o Outcome) int {
	n := 0
	for _, p := range b.Pages {
		if p.Outcome == o {
			n++
		}
	}
	return n
}

// Engine owns one datastore and one page tree and moves state between them.
type Engine struct {
	st    *store.Store
	files storage.Provider
	log   *slog.Logger

	workers int
	actor   string
}

// Options tunes an Engine. Zero values get sensible defaults.
type Options struct {
	// Workers bounds ingest/generate concurrency.
	Workers int
	// Actor is recorded on tombstones written by this engine.
	Actor string
}

// New builds an Engine over the given datastore and page tree.
func New(st *store.Store, files storage.Provider, logger *slog.Logger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Actor == "" {
		opts.Actor = "canon"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{st: st, files: files, log: logger, workers: opts.Workers, actor: opts.Actor}
}

// categoryForPath maps a page path to its category schema by directory.
func categoryForPath(p string) (*category.Schema, bool) {
	dir, _, ok := strings.Cut(p, "/")
	if !ok {
		return nil, false
	}
	for _, s := range category.All() {
		if s.Dir == dir {
			return s, true
		}
	}
	return nil, false
}

// slugForPath derives the entity slug from the page file name. The file
// location is the identity; frontmatter repeats it for humans.
func slugForPath(p string) string {
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}
	return strings.TrimSuffix(base, ".md")
}
