package sync

import (
	"context"
	"fmt"

	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/models"
)

// Full runs Ingest, waits for every page transaction to finish, then runs
// Generate over the touched entities plus everything whose aggregates they
// feed: relation endpoints on both sides and co-occurrence neighbors. The
// barrier between the phases guarantees generation reads fully committed
// state.
func (e *Engine) Full(ctx context.Context, paths []string) (*BatchResult, error) {
	ing, err := e.Ingest(ctx, paths)
	if err != nil {
		return ing, err
	}

	var touched []models.EntityID
	for _, p := range ing.Pages {
		if p.Outcome == OutcomeCommitted && p.EntityID != 0 {
			touched = append(touched, p.EntityID)
			// Severed relation endpoints no longer show up when walking
			// the committed state, so carry them into the fan-out
			// explicitly.
			touched = append(touched, p.removed...)
		}
	}

	// Rejected pages keep their on-disk draft; generation must not render
	// over them from datastore state the edit never reached.
	skip := make(map[string]bool)
	for _, p := range ing.Pages {
		if p.Outcome == OutcomeRejected {
			skip[p.Path] = true
		}
	}

	var gen *BatchResult
	if len(paths) == 0 {
		// Whole-tree run: regenerate everything rather than computing a
		// fan-out that would cover it anyway.
		gen, err = e.generate(ctx, nil, skip)
	} else {
		affected, ferr := e.fanOut(touched)
		if ferr != nil {
			return ing, ferr
		}
		if len(affected) > 0 {
			gen, err = e.generate(ctx, affected, skip)
		}
	}

	batch := newBatch("full")
	batch.StartedAt = ing.StartedAt
	batch.Pages = append(batch.Pages, ing.Pages...)
	if gen != nil {
		batch.Pages = append(batch.Pages, gen.Pages...)
	}
	return batch.finish(), err
}

// fanOut expands the touched set to every entity whose generated sections may
// have changed: direct relation endpoints in both directions, and participant
// co-occurrence neighbors (a character's collaborator list changes when
// someone else joins a shared scene).
func (e *Engine) fanOut(touched []models.EntityID) ([]models.EntityID, error) {
	seen := make(map[models.EntityID]bool, len(touched))
	var out []models.EntityID
	add := func(id models.EntityID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range touched {
		add(id)
	}
	for _, id := range touched {
		for _, name := range relationNames() {
			children, err := e.st.RelatedOf(name, id)
			if err != nil {
				return nil, fmt.Errorf("sync: fan-out: %w", err)
			}
			for _, c := range children {
				add(c.ID)
			}
			parents, err := e.st.RelationsTo(name, id)
			if err != nil {
				return nil, fmt.Errorf("sync: fan-out: %w", err)
			}
			for _, p := range parents {
				add(p.ID)
			}
		}

		co, err := e.st.CoOccurrences("participant", id)
		if err != nil {
			return nil, fmt.Errorf("sync: fan-out: %w", err)
		}
		for _, c := range co {
			add(c.ID)
		}
		neighbors, err := e.st.SharedParents("participant", id)
		if err != nil {
			return nil, fmt.Errorf("sync: fan-out: %w", err)
		}
		for _, n := range neighbors {
			add(n.ID)
		}
	}
	return out, nil
}

// relationNames lists every relation backing a reference or structured
// section in the category registry.
func relationNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, s := range category.All() {
		for _, ss := range s.Sections {
			if ss.RelationName == "" || ss.Kind == category.KindQuote {
				continue
			}
			if !seen[ss.RelationName] {
				seen[ss.RelationName] = true
				names = append(names, ss.RelationName)
			}
		}
	}
	return names
}
