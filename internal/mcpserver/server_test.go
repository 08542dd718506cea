package mcpserver

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	canonsync "github.com/veslund/canon/internal/sync"
	"github.com/veslund/canon/internal/testutil"
)

const annaPage = `---
category: character
slug: anna-merse
title: Anna Merse
---

## Overview

A sharp-eyed archivist.
`

func testServer(t *testing.T) *Server {
	t.Helper()

	st := testutil.TestStore(t)
	_, files := testutil.TestCanon(t)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	engine := canonsync.New(st, files, logger, canonsync.Options{Workers: 2, Actor: "test"})

	return New(files, st, engine)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "write_page":
		result, err = srv.writePage(ctx, req)
	case "check_page":
		result, err = srv.checkPage(ctx, req)
	case "sync_full":
		result, err = srv.syncFull(ctx, req)
	case "list_pages":
		result, err = srv.listPages(ctx, req)
	case "list_entities":
		result, err = srv.listEntities(ctx, req)
	case "get_page_contract":
		result, err = srv.getPageContract(ctx, req)
	case "upload_asset":
		result, err = srv.uploadAsset(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadPage(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "write_page", map[string]any{
		"path":    "characters/anna-merse.md",
		"content": annaPage,
	})
	if r.IsError {
		t.Fatalf("write_page failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"committed"`) {
		t.Errorf("write_page batch missing committed outcome: %s", resultText(r))
	}

	r = callTool(t, srv, "read_page", map[string]any{
		"path": "characters/anna-merse.md",
	})
	text := resultText(r)
	if !strings.Contains(text, "A sharp-eyed archivist.") {
		t.Errorf("read_page missing overview: %q", text)
	}
	// A committed write regenerates the page, so the generated half is present.
	if !strings.Contains(text, "<!-- canon:generated -->") {
		t.Errorf("read_page missing generated marker: %q", text)
	}
}

func TestWritePage_InvalidContentRejected(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "write_page", map[string]any{
		"path":    "characters/anna-merse.md",
		"content": "no frontmatter here\n",
	})
	if !strings.Contains(resultText(r), `"rejected"`) {
		t.Errorf("expected rejected outcome, got: %s", resultText(r))
	}

	// A rejected write leaves the datastore untouched.
	r = callTool(t, srv, "list_entities", map[string]any{})
	if got := resultText(r); strings.Contains(got, "anna-merse") {
		t.Errorf("rejected write created an entity: %q", got)
	}
}

func TestCheckPage_DraftContent(t *testing.T) {
	srv := testServer(t)

	draft := annaPage + `
## Relationships

- [[Nobody Known]]
`
	r := callTool(t, srv, "check_page", map[string]any{
		"path":    "characters/anna-merse.md",
		"content": draft,
	})
	text := resultText(r)
	if !strings.Contains(text, "UNRESOLVED_REFERENCE") {
		t.Errorf("check_page missing unresolved reference diagnostic: %s", text)
	}

	// Dry run: nothing on disk, nothing in the datastore.
	r = callTool(t, srv, "read_page", map[string]any{"path": "characters/anna-merse.md"})
	if !r.IsError {
		t.Error("check_page wrote the page to disk")
	}
}

func TestReadPageMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_page", map[string]any{"path": "characters/nope.md"})
	if !r.IsError {
		t.Error("expected error for missing page")
	}
}

func TestListPagesAndEntities(t *testing.T) {
	srv := testServer(t)

	callTool(t, srv, "write_page", map[string]any{
		"path":    "characters/anna-merse.md",
		"content": annaPage,
	})

	r := callTool(t, srv, "list_pages", map[string]any{"folder": "characters"})
	if !strings.Contains(resultText(r), "characters/anna-merse.md") {
		t.Errorf("list_pages missing page: %q", resultText(r))
	}

	r = callTool(t, srv, "list_entities", map[string]any{"category": "character"})
	if !strings.Contains(resultText(r), "anna-merse\tAnna Merse") {
		t.Errorf("list_entities missing entity: %q", resultText(r))
	}
}

func TestSyncFull_WholeTree(t *testing.T) {
	srv := testServer(t)

	callTool(t, srv, "write_page", map[string]any{
		"path":    "characters/anna-merse.md",
		"content": annaPage,
	})

	r := callTool(t, srv, "sync_full", map[string]any{})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("sync_full failed: %s", text)
	}
	if !strings.Contains(text, `"mode": "full"`) {
		t.Errorf("sync_full batch missing mode: %s", text)
	}
}

func TestGetPageContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_page_contract", map[string]any{})
	if !strings.Contains(resultText(r), "canon:generated") {
		t.Error("contract missing generated marker documentation")
	}
}

func TestUploadAsset_SlugNameAndDedupe(t *testing.T) {
	srv := testServer(t)

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 16)...)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	r := callTool(t, srv, "upload_asset", map[string]any{
		"url":      uri,
		"filename": "Anna Ledger.png",
	})
	if r.IsError {
		t.Fatalf("upload failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"/attachments/anna-ledger.png"`) {
		t.Errorf("filename not slugged: %s", resultText(r))
	}

	// Re-uploading identical bytes keeps the same path.
	r = callTool(t, srv, "upload_asset", map[string]any{
		"url":      uri,
		"filename": "Anna Ledger.png",
	})
	if r.IsError {
		t.Fatalf("idempotent re-upload failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"/attachments/anna-ledger.png"`) {
		t.Errorf("re-upload moved the asset: %s", resultText(r))
	}

	// Same name with different bytes lands under a digest-suffixed name
	// instead of clobbering the original.
	other := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, []byte("different body")...)
	r = callTool(t, srv, "upload_asset", map[string]any{
		"url":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(other),
		"filename": "Anna Ledger.png",
	})
	if r.IsError {
		t.Fatalf("conflicting upload failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "/attachments/anna-ledger-") {
		t.Errorf("conflicting upload not disambiguated: %s", resultText(r))
	}
}
