// Package testutil provides shared test helpers for setting up snapshot stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/maplab/internal/storage"
)

// TestSQLite creates a temporary SQLite snapshot store that is automatically
// cleaned up.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "maplab-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary snapshot directory with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
