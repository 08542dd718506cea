// Package testutil provides shared test helpers for setting up canon roots
// and datastores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
)

// TestStore creates a temporary SQLite datastore that is automatically
// cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp("", "canon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	st, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestCanon creates a temporary canon root with the category directories laid
// out and returns it with a storage.Provider.
func TestCanon(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"characters", "locations", "scenes"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, files
}

// WritePage writes raw page content under root, creating directories as
// needed.
func WritePage(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
