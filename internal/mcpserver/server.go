// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Canon tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/veslund/canon/internal/models"
	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
	canonsync "github.com/veslund/canon/internal/sync"
)

// Server wraps the MCP server with Canon tools.
type Server struct {
	mcp    *server.MCPServer
	store  storage.Provider
	db     *store.Store
	engine *canonsync.Engine
}

// New creates a new MCP server with all Canon tools registered.
func New(files storage.Provider, db *store.Store, engine *canonsync.Engine) *Server {
	s := &Server{store: files, db: db, engine: engine}

	s.mcp = server.NewMCPServer(
		"Canon",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the full content of a Markdown page."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page (e.g. characters/anna-merse.md)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("write_page",
		mcp.WithDescription("Write a Markdown page and sync it into the datastore. "+
			"Content MUST follow the canonical page format (YAML frontmatter with "+
			"category/slug/title, allowed sections, [[references]]). Pages that fail "+
			"validation are rejected and leave the datastore untouched. Read the "+
			"contract first via the get_page_contract tool or the canon://page-format "+
			"resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the page (must end with .md and live in its category directory)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the Canon page format contract")),
	), s.writePage)

	s.mcp.AddTool(mcp.NewTool("check_page",
		mcp.WithDescription("Validate a page without writing anything. Returns the "+
			"diagnostics a sync of this page would produce. Pass content to check a "+
			"draft, or omit it to check the page currently on disk."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path the page would live at")),
		mcp.WithString("content", mcp.Description("Optional draft content; when omitted the on-disk page is checked")),
	), s.checkPage)

	s.mcp.AddTool(mcp.NewTool("sync_full",
		mcp.WithDescription("Run a full sync cycle: ingest edited pages into the "+
			"datastore, then regenerate every affected page. Returns the batch result "+
			"with a per-page outcome."),
		mcp.WithString("path", mcp.Description("Optional single page path to sync (empty for the whole tree)")),
	), s.syncFull)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages or the pages of one category directory."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (characters, locations, scenes; empty for all)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List the entities the datastore currently holds, with category, slug and title."),
		mcp.WithString("category", mcp.Description("Optional category filter: character, location or scene")),
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("get_page_contract",
		mcp.WithDescription("Returns the canonical Canon page format contract. "+
			"Call this before creating or updating pages to ensure correct structure."),
	), s.getPageContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Upload an image or document into the shared attachments "+
			"directory from an http(s) URL or a base64 data URI. Returns a Markdown "+
			"image snippet ready to paste into a prose section."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the asset")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when omitted")),
	), s.uploadAsset)

	// Resource: page format contract.
	s.mcp.AddResource(
		mcp.NewResource("canon://page-format", "Page Format Contract",
			mcp.WithResourceDescription("Canonical Markdown page format that all pages must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) writePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.store.Write(path, []byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	batch, err := s.engine.Full(ctx, []string{path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(batch, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) checkPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var fd any
	if content, cErr := req.RequireString("content"); cErr == nil {
		fd, err = s.engine.CheckText(path, []byte(content))
	} else {
		fd, err = s.engine.CheckPage(path)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(fd, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncFull(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var paths []string
	if p, err := req.RequireString("path"); err == nil && p != "" {
		paths = []string{p}
	}

	batch, err := s.engine.Full(ctx, paths)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(batch, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = f
	}

	metas, err := s.store.List(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) listEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ents []models.Entity
	var err error

	if c, cErr := req.RequireString("category"); cErr == nil && c != "" {
		ents, err = s.db.ListEntities(models.Category(c))
	} else {
		ents, err = s.db.AllEntities()
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, e := range ents {
		if e.Deleted() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", e.Category, e.Slug, e.DisplayName))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no entities"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getPageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormatContract), nil
}

func (s *Server) readPageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "canon://page-format",
			MIMEType: "text/markdown",
			Text:     PageFormatContract,
		},
	}, nil
}
