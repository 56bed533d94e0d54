package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"file_chunks", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}

	var index string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_file_chunks_file_id'").Scan(&index)
	if err != nil {
		t.Errorf("file_id index was not created: %v", err)
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := CheckDBMigrationStatus(db, "sqlite3")
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if err := CheckDBMigrationStatus(db, "sqlite3"); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	if err := CheckDBMigrationStatus(db, "sqlite3"); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestMigrateUp_UnknownDialect(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "postgres"); err == nil {
		t.Error("MigrateUp() expected error for unknown dialect, got nil")
	}
}

func TestSchema_NullableNextID(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO file_chunks (id, file_id, name, mime_type, time_stamp, next_id, chunk_bytes_length, total_bytes_length, data)
		VALUES ('f1', 'f1', 'a.txt', 'text/plain', datetime('now'), NULL, 3, 3, x'616263')
	`)
	if err != nil {
		t.Fatalf("Failed to insert terminal chunk: %v", err)
	}

	var next sql.NullString
	var start int64
	if err := db.QueryRow("SELECT next_id, start_offset FROM file_chunks WHERE id = 'f1'").Scan(&next, &start); err != nil {
		t.Fatalf("Failed to read chunk: %v", err)
	}
	if next.Valid {
		t.Errorf("next_id = %q, want NULL", next.String)
	}
	if start != 0 {
		t.Errorf("start_offset = %d, want default 0", start)
	}
}

func TestSchema_PrimaryKeyUnique(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "sqlite3"); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO file_chunks (id, file_id, name, mime_type, time_stamp, chunk_bytes_length, total_bytes_length, data)
		VALUES ('dup', 'dup', 'a', 'text/plain', datetime('now'), 0, 0, x'')`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("Failed to insert first chunk: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("Expected primary key violation for duplicate id, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	return db
}
