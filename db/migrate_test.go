package db

import (
	"context"
	"database/sql"
	"testing"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_name = $1
	)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

func TestRunMigrations(t *testing.T) {
	db := openTestDB(t)
	cleanDatabase(t, context.Background(), db)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if !tableExists(t, db, "stream_sessions") {
		t.Fatal("stream_sessions table does not exist after migration")
	}

	version, dirty, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty {
		t.Error("migration is dirty")
	}
	if version == 0 {
		t.Error("version = 0 after migrations")
	}
}

// TestMigrationsIdempotent runs migrations twice
func TestMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	cleanDatabase(t, context.Background(), db)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("first RunMigrations() error = %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
}

func TestMigrationUpDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, db)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	versionBefore, _, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}

	for i := uint(0); i < versionBefore; i++ {
		if err := MigrateDown(db); err != nil {
			t.Fatalf("MigrateDown() iteration %d error = %v", i, err)
		}
	}
	if tableExists(t, db, "stream_sessions") {
		t.Error("stream_sessions still exists after rolling back all migrations")
	}
	version, _, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() after down error = %v", err)
	}
	if version != 0 {
		t.Errorf("version after rolling back all = %d, want 0", version)
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() after rollback error = %v", err)
	}
	versionFinal, dirty, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() after re-apply error = %v", err)
	}
	if dirty || versionFinal != versionBefore {
		t.Errorf("after re-apply version = %d dirty = %v, want %d clean", versionFinal, dirty, versionBefore)
	}
}

// cleanDatabase drops the relay tables and schema_migrations to start fresh
func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()

	statements := []string{
		`DROP TABLE IF EXISTS stream_sessions CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Logf("warning: clean database statement failed (may be expected): %v", err)
		}
	}
}
