package sync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veslund/canon/internal/apperr"
)

// EventCallback is called after a watcher-driven sync, once per affected
// page. kind is one of "synced", "rejected", "deleted".
type EventCallback func(kind string, path string)

// debounceWindow batches rapid editor save bursts into one sync run.
const debounceWindow = 250 * time.Millisecond

// Watch runs fsnotify on the canon root and keeps datastore and pages
// converged until ctx is cancelled: changed pages are re-ingested and their
// aggregate fan-out regenerated, removed pages soft-delete their entity.
//
// Generation's own writes re-enter the watcher as events; because a re-ingest
// of generated output changes nothing and write minimality suppresses the
// rewrite, the loop settles after one extra pass.
//
// New directories created at runtime are added to the watch list.
func (e *Engine) Watch(ctx context.Context, root string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	e.log.Info("watcher started", slog.String("root", root))

	pending := map[string]bool{} // path -> removed
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounceWindow)
			timerCh = timer.C
		} else {
			timer.Reset(debounceWindow)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.log.Info("watcher stopped")
			return nil

		case <-timerCh:
			e.flushPending(ctx, pending, cb)
			pending = map[string]bool{}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						e.log.Warn("watch new dir failed",
							slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if _, ok := categoryForPath(rel); !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[rel] = false
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[rel] = true
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// flushPending applies one debounced burst: removals soft-delete the backing
// entity, everything else goes through a Full run.
func (e *Engine) flushPending(ctx context.Context, pending map[string]bool, cb EventCallback) {
	var changed []string
	removedAny := false
	for p, removed := range pending {
		if !removed {
			changed = append(changed, p)
			continue
		}
		// A rename fires Remove on the old path while the new path arrives
		// as a separate Create. Deleting a page retires its entity. Pages the
		// engine itself already removed have no live entity left; skip them.
		err := e.RetirePage(p)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			e.log.Warn("retire page failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removedAny = true
		if cb != nil {
			cb("deleted", p)
		}
	}

	// A retired entity leaves a stale index entry; drop it right away. Pages
	// that referenced it refresh on their own next sync.
	if removedAny {
		if res := e.generateIndex(); res.Outcome == OutcomeFailed {
			e.log.Error("regenerate index after delete failed", slog.String("error", res.Error))
		}
	}
	if len(changed) == 0 {
		return
	}

	batch, err := e.Full(ctx, changed)
	if err != nil {
		e.log.Error("watch sync failed", slog.String("error", err.Error()))
		return
	}
	if cb != nil {
		for _, p := range batch.Pages {
			switch p.Outcome {
			case OutcomeCommitted:
				cb("synced", p.Path)
			case OutcomeRejected:
				cb("rejected", p.Path)
			}
		}
	}
}

// RetirePage soft-deletes the entity behind a removed page and drops the
// page's sync record.
func (e *Engine) RetirePage(p string) error {
	ent, err := e.st.GetEntityBySlug(slugForPath(p))
	if err != nil {
		return err
	}
	if err := e.st.SoftDeleteEntity(ent.ID); err != nil {
		return err
	}
	return e.st.DeleteSyncRecord(p)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
