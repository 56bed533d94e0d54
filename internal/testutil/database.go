package testutil

import (
	"testing"

	"chunkdb/internal/database"
	"chunkdb/internal/model"
)

// NewTestDB creates a new in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}

// NewTestStore creates a chunk store over a fresh in-memory database.
func NewTestStore(t *testing.T) *database.ChunkStore[*model.ChunkRow] {
	t.Helper()
	return database.NewDefaultStore(NewTestDB(t))
}
