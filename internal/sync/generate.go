package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/checksum"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/render"
)

// Generate renders the canonical page for every entity in scope and writes
// only the pages whose bytes actually changed. A nil or empty ids slice means
// every entity. Soft-deleted entities have their pages removed. The index page
// is regenerated whenever the scope is the whole datastore.
func (e *Engine) Generate(ctx context.Context, ids []models.EntityID) (*BatchResult, error) {
	return e.generate(ctx, ids, nil)
}

// generate is Generate with a skip set: pages rejected earlier in the same
// run must keep their on-disk draft, so the author's edit survives to be
// fixed. Rendering them from the datastore would overwrite the draft with
// stale state.
func (e *Engine) generate(ctx context.Context, ids []models.EntityID, skip map[string]bool) (*BatchResult, error) {
	batch := newBatch("generate")

	all := len(ids) == 0
	ents, err := e.scopeEntities(ids)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, ent := range ents {
		if skip[category.PagePath(ent.Category, ent.Slug)] {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch.add(e.generatePage(&ent))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch.finish(), err
	}

	if all {
		if err := e.removeOrphanPages(ents, batch); err != nil {
			return batch.finish(), err
		}
	}
	batch.add(e.generateIndex())

	e.log.Info("generate finished",
		slog.String("batch", batch.ID),
		slog.Int("committed", batch.Count(OutcomeCommitted)),
		slog.Int("unchanged", batch.Count(OutcomeSkipped)))
	return batch.finish(), nil
}

func (e *Engine) scopeEntities(ids []models.EntityID) ([]models.Entity, error) {
	if len(ids) == 0 {
		ents, err := e.st.AllEntities()
		if err != nil {
			return nil, fmt.Errorf("sync: generate: %w", err)
		}
		return ents, nil
	}

	seen := make(map[models.EntityID]bool, len(ids))
	var ents []models.Entity
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ent, err := e.st.GetEntity(id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("sync: generate: %w", err)
		}
		ents = append(ents, *ent)
	}
	return ents, nil
}

// generatePage brings one entity's page file in line with the datastore.
func (e *Engine) generatePage(ent *models.Entity) PageResult {
	path := category.PagePath(ent.Category, ent.Slug)
	res := PageResult{Path: path, EntityID: ent.ID}

	if ent.Deleted() {
		err := e.files.Delete(path)
		switch {
		case err == nil:
			res.Outcome = OutcomeCommitted
			e.log.Debug("page removed", slog.String("path", path))
		case errors.Is(err, fs.ErrNotExist):
			res.Outcome = OutcomeSkipped
		default:
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
			return res
		}
		if err := e.st.DeleteSyncRecord(path); err != nil {
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
		}
		return res
	}

	out, err := render.EntityPage(e.st, ent)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		e.log.Error("render failed", slog.String("path", path), slog.String("error", err.Error()))
		return res
	}

	return e.writeIfChanged(res, path, out)
}

func (e *Engine) generateIndex() PageResult {
	res := PageResult{Path: category.IndexPath}
	out, err := render.IndexPage(e.st)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}
	return e.writeIfChanged(res, category.IndexPath, out)
}

// writeIfChanged is the write-minimality gate: a byte-identical page on disk
// is left untouched, so unchanged datastore state causes zero file writes.
func (e *Engine) writeIfChanged(res PageResult, path string, out []byte) PageResult {
	existing, err := e.files.Read(path)
	if err == nil && bytes.Equal(existing, out) {
		res.Outcome = OutcomeSkipped
	} else {
		if werr := e.files.Write(path, out); werr != nil {
			res.Outcome = OutcomeFailed
			res.Error = werr.Error()
			e.log.Error("write failed", slog.String("path", path), slog.String("error", werr.Error()))
			return res
		}
		res.Outcome = OutcomeCommitted
		e.log.Debug("page written", slog.String("path", path), slog.Int("bytes", len(out)))
	}

	rerr := e.st.UpsertSyncRecord(models.SyncRecord{
		Path:             path,
		LastRenderedHash: checksum.Sum(out),
		LastSyncedAt:     time.Now().UTC(),
	})
	if rerr != nil {
		res.Outcome = OutcomeFailed
		res.Error = rerr.Error()
	}
	return res
}

// removeOrphanPages deletes page files whose entity no longer exists at all.
// Soft-deleted entities are handled per page; this pass catches files left
// behind by out-of-band datastore changes. Only paths with a sync record are
// candidates: a file the engine never rendered is an author draft, not an
// orphan.
func (e *Engine) removeOrphanPages(ents []models.Entity, batch *BatchResult) error {
	known := make(map[string]bool, len(ents)+1)
	for _, ent := range ents {
		known[category.PagePath(ent.Category, ent.Slug)] = true
	}
	known[category.IndexPath] = true

	recs, err := e.st.AllSyncRecords()
	if err != nil {
		return fmt.Errorf("sync: generate: orphan scan: %w", err)
	}

	metas, err := e.files.List("")
	if err != nil {
		return fmt.Errorf("sync: generate: orphan scan: %w", err)
	}
	for _, m := range metas {
		if known[m.Path] {
			continue
		}
		if _, ok := categoryForPath(m.Path); !ok {
			continue
		}
		if _, rendered := recs[m.Path]; !rendered {
			continue
		}
		res := PageResult{Path: m.Path}
		if err := e.files.Delete(m.Path); err != nil {
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
		} else {
			res.Outcome = OutcomeCommitted
			e.log.Debug("orphan page removed", slog.String("path", m.Path))
			if err := e.st.DeleteSyncRecord(m.Path); err != nil {
				res.Outcome = OutcomeFailed
				res.Error = err.Error()
			}
		}
		batch.add(res)
	}
	return nil
}
