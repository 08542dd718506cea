package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/veslund/canon/internal/checksum"
	"github.com/veslund/canon/pkg/slug"
)

// Attachments live in a flat directory next to the category directories and
// are referenced from prose sections as ![name](/attachments/name.ext).
const (
	attachmentsDir     = "attachments"
	maxAttachmentBytes = 10 << 20
)

// attachmentTypes maps the accepted file extensions to their MIME types.
var attachmentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
}

type uploadedAsset struct {
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
	Checksum string `json:"checksum"`
}

func (s *Server) uploadAsset(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	explicit := ""
	if v, fErr := req.RequireString("filename"); fErr == nil {
		explicit = v
	}

	var data []byte
	var detectedExt string
	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = fetchRemote(rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAttachmentBytes {
		return mcp.NewToolResultError(fmt.Sprintf("attachment too large: %d bytes (max %d)", len(data), maxAttachmentBytes)), nil
	}

	name := attachmentName(explicit, rawURL, detectedExt)
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := attachmentTypes[ext]; !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported attachment type %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext)), nil
	}
	if err := sniffMatches(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sum := checksum.Sum(data)
	savePath := path.Join(attachmentsDir, name)
	if existing, readErr := s.store.Read(savePath); readErr == nil {
		if checksum.Sum(existing) != sum {
			// Same name, different bytes: keep both, disambiguated by a
			// digest prefix.
			name = strings.TrimSuffix(name, ext) + "-" + sum[:8] + ext
			savePath = path.Join(attachmentsDir, name)
		}
		// Identical bytes: fall through and rewrite in place, so
		// re-uploading the same asset is idempotent.
	}
	if err := s.store.Write(savePath, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save attachment: %v", err)), nil
	}

	urlPath := "/" + attachmentsDir + "/" + name
	out, _ := json.Marshal(uploadedAsset{
		Path:     urlPath,
		Markdown: fmt.Sprintf("![%s](%s)", name, urlPath),
		Checksum: sum,
	})
	return mcp.NewToolResultText(string(out)), nil
}

// attachmentName picks the on-disk filename: caller-supplied name first, then
// the URL basename, slugged the same way page slugs are. A data URI with no
// explicit name gets a random one.
func attachmentName(explicit, rawURL, detectedExt string) string {
	base := explicit
	if base == "" && !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			if b := path.Base(parsed.Path); strings.Contains(b, ".") {
				base = b
			}
		}
	}
	fallbackExt := detectedExt
	if fallbackExt == "" {
		fallbackExt = ".bin"
	}
	if base == "" {
		return uuid.New().String() + fallbackExt
	}

	base = filepath.Base(base)
	ext := strings.ToLower(filepath.Ext(base))
	if ext == "" {
		ext = fallbackExt
	}
	stem := slug.From(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = uuid.New().String()
	}
	return stem + ext
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	meta, encoded := rest[:comma], rest[comma+1:]
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := extForMIME(mime)
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchRemote downloads an asset over http(s). Loopback and cloud metadata
// hosts are refused, including across redirects.
func fetchRemote(rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := blockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return blockedHost(req.URL.Hostname())
		},
	}

	resp, err := client.Get(rawURL) //nolint:noctx
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, "", fmt.Errorf("attachment too large: exceeds %d bytes", maxAttachmentBytes)
	}

	return data, extForMIME(resp.Header.Get("Content-Type")), nil
}

func blockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

func extForMIME(m string) string {
	switch strings.TrimSpace(strings.Split(m, ";")[0]) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}

// sniffMatches verifies the asset bytes match the declared extension.
func sniffMatches(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be SVG (missing <svg tag)")
		}
		return nil
	}

	// Comparing by MIME lets .jpg and .jpeg both accept image/jpeg.
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if detected != attachmentTypes[ext] {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
