package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/groupsync/internal/persistence"
	"github.com/example/groupsync/internal/persistence/memory"
	"github.com/example/groupsync/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated store in a temporary file that is closed when
// the test ends.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "groupsync.db")
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Stores returns a constructor per store implementation so contract tests can
// run the same assertions against each.
func Stores() map[string]func(testing.TB) persistence.Store {
	return map[string]func(testing.TB) persistence.Store{
		"memory": func(testing.TB) persistence.Store { return memory.New() },
		"sqlite": func(tb testing.TB) persistence.Store { return NewSQLiteStore(tb) },
	}
}
