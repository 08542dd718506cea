package api

import (
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/pageservice"
	canonsync "github.com/veslund/canon/internal/sync"
)

// SyncRequest names the pages a sync operation should cover. Empty means the
// whole tree.
type SyncRequest struct {
	Paths []string `json:"paths,omitempty"`
}

// GenerateRequest scopes generation to specific entities. Empty means all.
type GenerateRequest struct {
	EntityIDs []models.EntityID `json:"entity_ids,omitempty"`
}

// BatchResponse is the wire form of a finished sync batch.
type BatchResponse = canonsync.BatchResult

// DiagnosticsResponse is the dry-run diagnostics payload: one entry per
// checked file.
type DiagnosticsResponse struct {
	Files []diag.FileDiagnostics `json:"files"`
}

// EntityListResponse wraps entity listings.
type EntityListResponse struct {
	Entities []models.Entity `json:"entities"`
	Total    int             `json:"total"`
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// PageListItem is a lightweight item in a list response (aliased from the
// domain layer).
type PageListItem = pageservice.PageListItem

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []PageListItem `json:"pages"`
	Total int            `json:"total"`
}

// PutPageRequest is the request body for writing a page.
type PutPageRequest struct {
	Content string `json:"content"`
}

// PutPageResponse pairs the stored page with the sync batch its write caused.
type PutPageResponse struct {
	Page  *PageDetail    `json:"page"`
	Batch *BatchResponse `json:"batch"`
}
