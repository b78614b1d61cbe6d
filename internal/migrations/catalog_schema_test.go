package migrations

import (
	"strings"
	"testing"
)

func TestCatalogMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	requiredSnippets := map[string][]string{
		"sql/000001_catalog.up.sql": {
			"CREATE TABLE catalog_database",
			"CREATE TABLE catalog_table",
			"CREATE TABLE catalog_column",
			"UNIQUE (database_id, name)",
			"CREATE INDEX idx_catalog_column_table_ordinal",
		},
		"sql/000002_export_run.up.sql": {
			"CREATE TABLE export_run",
			"run_id        TEXT PRIMARY KEY",
			"CREATE INDEX idx_export_run_job_committed_desc",
		},
	}

	for file, snippets := range requiredSnippets {
		body, err := embeddedFS.ReadFile(file)
		if err != nil {
			t.Fatalf("ReadFile(%q) error = %v", file, err)
		}
		sql := string(body)
		for _, snippet := range snippets {
			if !strings.Contains(sql, snippet) {
				t.Fatalf("%s missing required snippet: %s", file, snippet)
			}
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected embedded migrations: %+v", items)
	}
}
