package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func readMigration(t *testing.T, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(testMigrationsDir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(raw)
}

func TestMigrationsArePairedAndNamed(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)
	names := map[string]string{}
	pairs := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		version, name, direction := match[1], match[2], match[3]
		if prev, ok := names[version]; ok && prev != name {
			t.Fatalf("version %s has two names: %s and %s", version, prev, name)
		}
		names[version] = name
		if pairs[version] == nil {
			pairs[version] = map[string]bool{}
		}
		pairs[version][direction] = true
	}

	want := map[string]string{"0001": "pages", "0002": "page_media"}
	for version, name := range want {
		if names[version] != name {
			t.Errorf("version %s: expected %q, got %q", version, name, names[version])
		}
	}
	for version, dirs := range pairs {
		if !dirs["up"] || !dirs["down"] {
			t.Errorf("version %s must include both up and down files", version)
		}
	}
}

func TestPagesMigrationStoresContentAsText(t *testing.T) {
	up := readMigration(t, "0001_pages.up.sql")
	// content is stored verbatim so untouched blocks keep their bytes
	if !regexp.MustCompile(`(?m)^\s*content TEXT NOT NULL`).MatchString(up) {
		t.Fatalf("pages.content must be TEXT, got:\n%s", up)
	}
	if strings.Contains(strings.ToUpper(up), "JSONB") {
		t.Fatal("pages must not use JSONB, which reorders and reformats content")
	}
	for _, want := range []string{"parent_id TEXT REFERENCES pages(id)", "fts TSVECTOR GENERATED ALWAYS", "USING GIN(fts)"} {
		if !strings.Contains(up, want) {
			t.Errorf("0001 up missing %q", want)
		}
	}
	if down := readMigration(t, "0001_pages.down.sql"); !strings.Contains(down, "DROP TABLE IF EXISTS pages") {
		t.Errorf("0001 down must drop pages")
	}
}

func TestPageMediaMigrationCascadesFromPages(t *testing.T) {
	up := readMigration(t, "0002_page_media.up.sql")
	if !strings.Contains(up, "REFERENCES pages(id) ON DELETE CASCADE") {
		t.Fatalf("page_media must cascade from pages, got:\n%s", up)
	}
	if down := readMigration(t, "0002_page_media.down.sql"); !strings.Contains(down, "DROP TABLE IF EXISTS page_media") {
		t.Errorf("0002 down must drop page_media")
	}
}
