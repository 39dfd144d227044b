package repository

import (
	"strings"
	"testing"

	"opticai_backend/migrations"
)

// schemaColumns extracts the column names of one table from the embedded
// init migration.
func schemaColumns(t *testing.T, table string) map[string]bool {
	t.Helper()
	raw, err := migrations.FS.ReadFile("00001_init.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	marker := "CREATE TABLE " + table + " ("
	body := string(raw)
	start := strings.Index(body, marker)
	if start < 0 {
		t.Fatalf("table %s not found in init migration", table)
	}
	rest := body[start+len(marker):]
	end := strings.Index(rest, "\n);")
	if end < 0 {
		t.Fatalf("unterminated CREATE TABLE for %s", table)
	}

	cols := map[string]bool{}
	for _, line := range strings.Split(rest[:end], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := strings.Fields(line)[0]
		if name != strings.ToLower(name) {
			continue
		}
		cols[name] = true
	}
	return cols
}

func TestLogColumnsMatchSchema(t *testing.T) {
	cols := schemaColumns(t, "medical_logs")
	for _, col := range strings.Split(logColumns, ",") {
		col = strings.TrimSpace(col)
		if !cols[col] {
			t.Errorf("repository references column %q which does not exist in medical_logs schema", col)
		}
	}
}
