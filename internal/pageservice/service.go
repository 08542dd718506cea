// Package pageservice exposes page-level operations for the API and MCP
// surfaces: reading, writing with optimistic concurrency, and retiring pages.
// Writes go through the sync engine so the datastore and the generated halves
// stay converged.
package pageservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/checksum"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
	canonsync "github.com/veslund/canon/internal/sync"
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	Path        string            `json:"path"`
	Content     string            `json:"content"`
	Checksum    string            `json:"checksum"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PageListItem is a lightweight item in a list response.
type PageListItem struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage, datastore, and engine operations.
type Service struct {
	files  storage.Provider
	st     *store.Store
	engine *canonsync.Engine
}

// NewService creates a new page service.
func NewService(files storage.Provider, st *store.Store, engine *canonsync.Engine) *Service {
	return &Service{files: files, st: st, engine: engine}
}

// GetPage reads a page and attaches its current dry-run diagnostics.
func (s *Service) GetPage(_ context.Context, path string) (*PageDetail, error) {
	meta, err := s.files.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	data, err := s.files.Read(path)
	if err != nil {
		return nil, err
	}

	detail := &PageDetail{
		Path:      path,
		Content:   string(data),
		Checksum:  meta.Checksum,
		UpdatedAt: meta.UpdatedAt,
	}
	if fd, err := s.engine.CheckPage(path); err == nil {
		detail.Diagnostics = fd.Diagnostics
	}
	return detail, nil
}

// PutPage writes page content with optimistic concurrency and syncs it.
// ifMatch, when non-empty, must equal the checksum of the current on-disk
// content. The page may be new. Validation errors do not fail the write; they
// are returned as diagnostics with the page left un-ingested.
func (s *Service) PutPage(ctx context.Context, path string, content []byte, ifMatch string) (*PageDetail, *canonsync.BatchResult, error) {
	existing, err := s.files.Read(path)
	switch {
	case err == nil:
		if ifMatch != "" && ifMatch != checksum.Sum(existing) {
			return nil, nil, apperr.ErrConflict
		}
	case errors.Is(err, os.ErrNotExist):
		if ifMatch != "" {
			return nil, nil, apperr.ErrConflict
		}
	default:
		return nil, nil, err
	}

	if err := s.files.Write(path, content); err != nil {
		return nil, nil, err
	}
	batch, err := s.engine.Full(ctx, []string{path})
	if err != nil {
		return nil, nil, err
	}
	detail, err := s.GetPage(ctx, path)
	return detail, batch, err
}

// DeletePage removes a page and retires its entity.
func (s *Service) DeletePage(_ context.Context, path string) error {
	if err := s.files.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.engine.RetirePage(path); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// ListPages returns every page in the tree.
func (s *Service) ListPages(_ context.Context) ([]PageListItem, error) {
	metas, err := s.files.List("")
	if err != nil {
		return nil, err
	}
	items := make([]PageListItem, len(metas))
	for i, m := range metas {
		items[i] = PageListItem{Path: m.Path, Checksum: m.Checksum, UpdatedAt: m.UpdatedAt}
	}
	return items, nil
}

// Entities lists live entities, optionally restricted to one category.
func (s *Service) Entities(_ context.Context, c models.Category) ([]models.Entity, error) {
	if c != "" {
		return s.st.ListEntities(c)
	}
	var out []models.Entity
	for _, cat := range []models.Category{models.CategoryCharacter, models.CategoryLocation, models.CategoryScene} {
		ents, err := s.st.ListEntities(cat)
		if err != nil {
			return nil, err
		}
		out = append(out, ents...)
	}
	return out, nil
}
