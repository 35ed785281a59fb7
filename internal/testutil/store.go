// Package testutil holds shared test fixtures.
package testutil

import (
	"testing"

	"github.com/ronalddlopez/housecat/internal/repository"
)

// NewStore opens an in-memory SQLite store that is closed when the test
// finishes.
func NewStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
