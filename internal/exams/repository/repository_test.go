package repository

import (
	"strings"
	"testing"

	"opticai_backend/migrations"
)

// schemaColumns extracts the column names of one table from the embedded
// init migration, so query column lists can be checked against the schema
// the database actually gets.
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
		// Constraint lines start with an uppercase keyword.
		if name != strings.ToLower(name) {
			continue
		}
		cols[name] = true
	}
	return cols
}

func TestExamColumnsMatchSchema(t *testing.T) {
	cols := schemaColumns(t, "optical_exams")
	for _, col := range strings.Split(examColumns, ",") {
		col = strings.TrimSpace(col)
		if !cols[col] {
			t.Errorf("repository references column %q which does not exist in optical_exams schema", col)
		}
	}
}

func TestLayoutInstanceColumnsMatchSchema(t *testing.T) {
	cols := schemaColumns(t, "exam_layout_instances")
	for _, col := range []string{"exam_id", "layout_id", "exam_data", "is_active"} {
		if !cols[col] {
			t.Errorf("repository references column %q which does not exist in exam_layout_instances schema", col)
		}
	}
}
