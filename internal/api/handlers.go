package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veslund/canon/internal/apperr"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/pageservice"
	canonsync "github.com/veslund/canon/internal/sync"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *pageservice.Service
	engine *canonsync.Engine
}

// NewHandler creates a new Handler.
func NewHandler(svc *pageservice.Service, engine *canonsync.Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

// pagePath extracts the page path from the URL (everything after the mount
// point). Supports encoded slashes from API clients
// (e.g. characters%2Fanna-reyes.md).
func pagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Ingest handles POST /api/sync/ingest.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := h.engine.Ingest(r.Context(), req.Paths)
	if err != nil {
		slog.Error("ingest failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Generate handles POST /api/sync/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := h.engine.Generate(r.Context(), req.EntityIDs)
	if err != nil {
		slog.Error("generate failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Full handles POST /api/sync/full.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := h.engine.Full(r.Context(), req.Paths)
	if err != nil {
		slog.Error("full sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Diagnostics handles GET /api/diagnostics/*: a dry-run parse and validation
// of one page, never touching the datastore.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	fd, err := h.engine.CheckPage(path)
	if err != nil {
		slog.Error("diagnostics failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("page not found or outside the category directories"))
		return
	}
	if fd.Diagnostics == nil {
		fd.Diagnostics = []diag.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, DiagnosticsResponse{Files: []diag.FileDiagnostics{fd}})
}

// Entities handles GET /api/entities with an optional ?category= filter.
func (h *Handler) Entities(w http.ResponseWriter, r *http.Request) {
	c := models.Category(r.URL.Query().Get("category"))
	ents, err := h.svc.Entities(r.Context(), c)
	if err != nil {
		slog.Error("list entities failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if ents == nil {
		ents = []models.Entity{}
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: ents, Total: len(ents)})
}

// ListPages handles GET /api/pages.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListPages(r.Context())
	if err != nil {
		slog.Error("list pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []PageListItem{}
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: items, Total: len(items)})
}

// GetPage handles GET /api/pages/*.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get page failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// PutPage handles PUT /api/pages/* with optimistic concurrency via If-Match.
func (h *Handler) PutPage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PutPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	page, batch, err := h.svc.PutPage(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("put page failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, PutPageResponse{Page: page, Batch: batch})
}

// DeletePage handles DELETE /api/pages/*.
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeletePage(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("delete page failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes an optional JSON body; an empty body is a zero request.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}
