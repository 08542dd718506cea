// Package storage defines the page-tree file-system abstraction.
package storage

import "github.com/veslund/canon/internal/models"

// Provider is the interface for page file operations. Paths are always
// relative to the canon root.
type Provider interface {
	// List returns metadata for every .md page under dir.
	List(dir string) ([]models.PageMetadata, error)
	// Stat returns metadata for a single page.
	Stat(path string) (models.PageMetadata, error)
	// Read returns the raw bytes of the page at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the page at path (temp file, fsync, rename)
	// so a concurrent reader never observes a half-written page.
	Write(path string, content []byte) error
	// Delete removes the page at path.
	Delete(path string) error
}
