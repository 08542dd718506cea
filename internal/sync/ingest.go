package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/parse"
	"github.com/veslund/canon/internal/resolver"
	"github.com/veslund/canon/internal/store"
	"github.com/veslund/canon/internal/validate"
)

// pageJob carries one page through the ingest pipeline.
type pageJob struct {
	path   string
	schema *category.Schema
	data   []byte
	// edited is the page file's modification time: the moment the source
	// edit happened, used for tombstone precedence.
	edited time.Time
}

// Ingest reads the given pages (or every page under the category directories
// when paths is empty), parses and validates each, and commits the clean ones
// to the datastore. Each page commits in its own transaction; a rejected or
// failed page never blocks its neighbors.
func (e *Engine) Ingest(ctx context.Context, paths []string) (*BatchResult, error) {
	batch := newBatch("ingest")

	jobs, err := e.loadJobs(paths, batch)
	if err != nil {
		return nil, err
	}

	// Gate pass: only pages that validate get their entity seeded. The gate
	// resolves references against the batch's other passing pages, so pages
	// ingested together can reference each other regardless of order, while a
	// page that will be rejected leaves the datastore untouched.
	ents, err := e.st.AllEntities()
	if err != nil {
		return nil, fmt.Errorf("sync: ingest: %w", err)
	}
	for _, j := range e.gateJobs(jobs, ents) {
		slug := slugForPath(j.path)
		_, err := e.st.GetEntityBySlug(slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("sync: ingest: seed entities: %w", err)
		}
		if _, err := e.st.CreateEntity(j.schema.Category, slug, jobTitle(j), nil); err != nil {
			return nil, fmt.Errorf("sync: ingest: seed entities: %w", err)
		}
	}

	ents, err = e.st.AllEntities()
	if err != nil {
		return nil, fmt.Errorf("sync: ingest: %w", err)
	}
	snap := resolver.NewSnapshot(ents)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch.add(e.ingestPage(j, snap))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch.finish(), err
	}

	e.log.Info("ingest finished",
		slog.String("batch", batch.ID),
		slog.Int("committed", batch.Count(OutcomeCommitted)),
		slog.Int("rejected", batch.Count(OutcomeRejected)),
		slog.Int("failed", batch.Count(OutcomeFailed)))
	return batch.finish(), nil
}

// loadJobs resolves the requested paths to page jobs. Unreadable or
// out-of-tree paths become failed page results instead of aborting the batch.
func (e *Engine) loadJobs(paths []string, batch *BatchResult) ([]pageJob, error) {
	if len(paths) == 0 {
		metas, err := e.files.List("")
		if err != nil {
			return nil, fmt.Errorf("sync: ingest: %w", err)
		}
		for _, m := range metas {
			if _, ok := categoryForPath(m.Path); ok {
				paths = append(paths, m.Path)
			}
		}
	}

	var jobs []pageJob
	for _, p := range paths {
		schema, ok := categoryForPath(p)
		if !ok {
			batch.add(PageResult{Path: p, Outcome: OutcomeFailed,
				Error: "path is not inside a category directory"})
			continue
		}
		meta, err := e.files.Stat(p)
		if err != nil {
			batch.add(PageResult{Path: p, Outcome: OutcomeFailed, Error: err.Error()})
			continue
		}
		data, err := e.files.Read(p)
		if err != nil {
			batch.add(PageResult{Path: p, Outcome: OutcomeFailed, Error: err.Error()})
			continue
		}
		jobs = append(jobs, pageJob{path: p, schema: schema, data: data, edited: meta.UpdatedAt})
	}
	return jobs, nil
}

// gateJobs validates each job against a snapshot that carries the batch's
// other still-passing pages as pending entities. The accepted set shrinks
// until stable, so a page whose only references point at rejected siblings
// is itself rejected before anything about it reaches the datastore.
func (e *Engine) gateJobs(jobs []pageJob, ents []models.Entity) []pageJob {
	accepted := jobs
	for {
		pre := resolver.NewSnapshot(ents)
		for _, j := range accepted {
			pre.AddPending(slugForPath(j.path), jobTitle(j))
		}
		var next []pageJob
		for _, j := range jobs {
			sm, ds := parse.Parse(j.data, j.schema, pre)
			ds = append(ds, validate.Validate(sm, j.schema, pre)...)
			if !diag.HasErrors(ds) {
				next = append(next, j)
			}
		}
		if len(next) == len(accepted) {
			return next
		}
		accepted = next
	}
}

func jobTitle(j pageJob) string {
	if t := parse.Title(j.data); t != "" {
		return t
	}
	return slugForPath(j.path)
}

// ingestPage runs the full pipeline for one page: parse, validate, gate,
// commit. Validation errors reject the page without touching the datastore.
func (e *Engine) ingestPage(j pageJob, snap *resolver.Snapshot) PageResult {
	res := PageResult{Path: j.path}

	sm, ds := parse.Parse(j.data, j.schema, snap)
	ds = append(ds, validate.Validate(sm, j.schema, snap)...)
	diag.Sort(ds)
	res.Diagnostics = ds

	if diag.HasErrors(ds) {
		res.Outcome = OutcomeRejected
		e.log.Warn("page rejected",
			slog.String("path", j.path),
			slog.Int("errors", diag.Count(ds, diag.SeverityError)))
		return res
	}

	var suppressed []diag.Diagnostic
	err := e.st.InTx(func(tx *store.Tx) error {
		id, _, err := tx.EnsureEntity(j.schema.Category, slugForPath(j.path), pageTitle(sm, j.path), sm.Attrs)
		if err != nil {
			return err
		}
		res.EntityID = id

		for i := range j.schema.Sections {
			ss := &j.schema.Sections[i]
			sec := sm.Section(ss.Heading)
			switch ss.Kind {
			case category.KindProse:
				if sec == nil {
					continue
				}
				if err := tx.ReplaceProse(id, ss.Heading, sec.Prose); err != nil {
					return err
				}
			case category.KindReferences, category.KindStructured:
				// An absent section means the author removed every entry:
				// diff against an empty desired set so each removal lands
				// a tombstone.
				sup, rem, err := e.applyRelations(tx, id, ss, sec, j.edited)
				if err != nil {
					return err
				}
				suppressed = append(suppressed, sup...)
				res.removed = append(res.removed, rem...)
			case category.KindQuote:
				var qs []models.Quote
				if sec != nil {
					qs = quotesOf(id, sec)
				}
				if err := tx.ReplaceQuotes(id, qs); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		e.log.Error("page commit failed", slog.String("path", j.path), slog.String("error", err.Error()))
		return res
	}

	if len(suppressed) > 0 {
		res.Diagnostics = append(res.Diagnostics, suppressed...)
		diag.Sort(res.Diagnostics)
	}
	res.Outcome = OutcomeCommitted
	e.log.Debug("page committed", slog.String("path", j.path), slog.Int64("entity", int64(res.EntityID)))
	return res
}

// applyRelations diffs the page's desired relation list for one section
// against the stored rows. Removals record tombstones and are reported back
// so generation can fan out to the severed endpoints; additions newer
// tombstones veto are reported, not applied.
func (e *Engine) applyRelations(tx *store.Tx, id models.EntityID, ss *category.SectionSchema, sec *parse.Section, edited time.Time) ([]diag.Diagnostic, []models.EntityID, error) {
	desired := desiredRelations(id, ss, sec)

	current, err := tx.RelationsFrom(ss.RelationName, id)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[models.EntityID]models.Relation, len(current))
	for _, r := range current {
		have[r.ChildID] = r
	}
	want := make(map[models.EntityID]models.Relation, len(desired))
	for _, r := range desired {
		want[r.ChildID] = r
	}

	var (
		suppressed []diag.Diagnostic
		removed    []models.EntityID
	)

	for child := range have {
		if _, ok := want[child]; ok {
			continue
		}
		if err := tx.RemoveRelation(ss.RelationName, id, child); err != nil {
			return nil, nil, err
		}
		err := tx.RecordTombstone(models.Tombstone{
			RelationName: ss.RelationName,
			ParentID:     id,
			ChildID:      child,
			DeletedAt:    time.Now(),
			DeletedBy:    e.actor,
		})
		if err != nil {
			return nil, nil, err
		}
		removed = append(removed, child)
	}

	for _, r := range desired {
		cur, exists := have[r.ChildID]
		if exists {
			if cur.Qualifier != r.Qualifier || cur.Note != r.Note || cur.Position != r.Position {
				if err := tx.UpdateRelation(r); err != nil {
					return nil, nil, err
				}
			}
			continue
		}
		dead, err := tx.IsTombstoned(ss.RelationName, id, r.ChildID, edited)
		if err != nil {
			return nil, nil, err
		}
		if dead {
			suppressed = append(suppressed, diag.New(diag.SeverityWarning, diag.CodeSuppressedByTombstone,
				relationSpan(sec, r.ChildID),
				fmt.Sprintf("entry in %q was removed more recently than this page was edited; not re-added", sec.Name)))
			continue
		}
		if err := tx.AddRelation(r); err != nil {
			return nil, nil, err
		}
	}
	return suppressed, removed, nil
}

// desiredRelations flattens a parsed section into relation rows in page order.
// A nil section yields no rows, so every stored row reads as removed.
func desiredRelations(id models.EntityID, ss *category.SectionSchema, sec *parse.Section) []models.Relation {
	if sec == nil {
		return nil
	}
	var out []models.Relation
	switch ss.Kind {
	case category.KindReferences:
		for i, ref := range sec.Refs {
			out = append(out, models.Relation{
				Name: ss.RelationName, ParentID: id, ChildID: ref.ID,
				Note: ref.Note, Position: i,
			})
		}
	case category.KindStructured:
		for i, ent := range sec.Entries {
			q := ent.Qualifier
			if q == "" {
				q = ent.Kind
			}
			out = append(out, models.Relation{
				Name: ss.RelationName, ParentID: id, ChildID: ent.Ref.ID,
				Qualifier: q, Note: ent.Note, Position: i,
			})
		}
	}
	return out
}

// relationSpan finds the page span of the entry referencing child, falling
// back to the section heading.
func relationSpan(sec *parse.Section, child models.EntityID) diag.Span {
	for _, ref := range sec.Refs {
		if ref.ID == child {
			return ref.Span
		}
	}
	for _, ent := range sec.Entries {
		if ent.Ref.ID == child {
			return ent.Span
		}
	}
	return diag.LineSpan(sec.Span.Line, 1)
}

func quotesOf(id models.EntityID, sec *parse.Section) []models.Quote {
	var out []models.Quote
	for i, q := range sec.Quotes {
		out = append(out, models.Quote{
			EntityID: id, Position: i,
			Body: q.Body, AttributionID: q.AttributionID, Mode: q.Mode, Note: q.Note,
		})
	}
	return out
}

func pageTitle(sm *parse.SectionMap, path string) string {
	if sm.Title != "" {
		return sm.Title
	}
	return slugForPath(path)
}
