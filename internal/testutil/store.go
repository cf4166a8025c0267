package testutil

import (
	"testing"

	"sentinel-go/internal/database"
	"sentinel-go/internal/sentinel"
)

// NewTestStore creates a new in-memory SQLite store with the schema applied,
// a fixed clock, and sequential IDs. The store is automatically closed when
// the test completes.
func NewTestStore(t *testing.T) sentinel.Store {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB, FixedClock(), NewStubIDGenerator())

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
