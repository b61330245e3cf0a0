package db

import (
	"path/filepath"
	"testing"
)

func TestNewAndMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "drydock.db")

	database, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// All core tables must exist after migration.
	for _, table := range []string{"workspaces", "builds", "workspace_logs", "jobs", "projects"} {
		var name string
		err := database.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	tdb, err := NewTest(t)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer tdb.Close()

	if err := tdb.Migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op, got: %v", err)
	}
}

func TestLiveProjectUniqueness(t *testing.T) {
	tdb, err := NewTest(t)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer tdb.Close()

	conn := tdb.Conn()
	if _, err := conn.Exec(`INSERT INTO workspaces (id, project_id) VALUES ('ws_1', 'proj_1')`); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// Second live workspace for the same project must violate the partial index.
	if _, err := conn.Exec(`INSERT INTO workspaces (id, project_id) VALUES ('ws_2', 'proj_1')`); err == nil {
		t.Fatal("expected uniqueness violation for second live workspace")
	}

	// Soft-deleting the first row frees the slot.
	if _, err := conn.Exec(`UPDATE workspaces SET deleted_at = CURRENT_TIMESTAMP WHERE id = 'ws_1'`); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO workspaces (id, project_id) VALUES ('ws_3', 'proj_1')`); err != nil {
		t.Fatalf("insert after soft delete failed: %v", err)
	}
}
