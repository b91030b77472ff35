package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
)

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()

	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = fsys, "."
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = prevFS, prevDir
	})
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260102_000000_add_notes.up.sql": {Data: []byte(
			`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);`)},
		"20260101_000000_create_items.up.sql": {Data: []byte(
			`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"20260101_000000_create_items.down.sql": {Data: []byte(`DROP TABLE items;`)},
		"README.md":                             {Data: []byte("not a migration")},
	}
}

func TestMigrate_AppliesInVersionOrder(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	want := []string{"20260101_000000", "20260102_000000"}
	if len(versions) != len(want) {
		t.Fatalf("AppliedVersions() = %v, want %v", versions, want)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("AppliedVersions()[%d] = %q, want %q", i, versions[i], want[i])
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO items (name) VALUES ('x')"); err != nil {
		t.Errorf("items table missing: %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("AppliedVersions() = %v, want 2 entries", versions)
	}
}

func TestMigrate_FailureStopsRun(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_good.up.sql":   {Data: []byte(`CREATE TABLE good (id INTEGER);`)},
		"20260102_000000_broken.up.sql": {Data: []byte(`CREATE TABLE oops (`)},
		"20260103_000000_later.up.sql":  {Data: []byte(`CREATE TABLE later (id INTEGER);`)},
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 1 || versions[0] != "20260101_000000" {
		t.Errorf("AppliedVersions() = %v, want only the first migration", versions)
	}
}

func TestMigrate_NoSource(t *testing.T) {
	useMigrations(t, nil)
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseUpFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20261019_120000_initial_schema.up.sql", "20261019_120000", "initial_schema", true},
		{"20261019_120000_add_index_on_x.up.sql", "20261019_120000", "add_index_on_x", true},
		{"20261019_120000.up.sql", "20261019_120000", "20261019_120000", true},
		{"20261019_120000_initial_schema.down.sql", "", "", false},
		{"2026_120000_short.up.sql", "", "", false},
		{"notes.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseUpFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseUpFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
