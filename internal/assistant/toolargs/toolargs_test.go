package toolargs

import (
	"testing"
	"time"
)

var clientSpec = Spec{
	Verbs: []string{"search", "get", "get_summary", "list_recent", "create", "update"},
	ShorthandParam: map[string]string{
		"search":      "search",
		"get":         "client_id",
		"get_summary": "client_id",
		"list_recent": "limit",
	},
}

func TestParseEquivalentShapes(t *testing.T) {
	inputs := []map[string]any{
		{"action": "search", "search": "smith"},
		{"__arg1": "search:smith"},
		{"__arg1": "search=smith"},
		{"__arg1": `{"action":"search","search":"smith"}`},
	}
	for i, input := range inputs {
		action, args, err := Parse(input, clientSpec)
		if err != nil {
			t.Fatalf("shape %d: %v", i, err)
		}
		if action != "search" {
			t.Fatalf("shape %d: action = %q", i, action)
		}
		if args["search"] != "smith" {
			t.Fatalf("shape %d: search arg = %v", i, args["search"])
		}
	}
}

func TestShorthandRoutesToCanonicalParam(t *testing.T) {
	action, args, err := Parse(map[string]any{"__arg1": "get:42"}, clientSpec)
	if err != nil {
		t.Fatal(err)
	}
	if action != "get" {
		t.Fatalf("action = %q", action)
	}
	id, err := Int(args["client_id"])
	if err != nil || id != 42 {
		t.Fatalf("client_id = %v (%v)", args["client_id"], err)
	}

	_, args, err = Parse(map[string]any{"__arg1": "list_recent:5"}, clientSpec)
	if err != nil {
		t.Fatal(err)
	}
	limit, err := Int(args["limit"])
	if err != nil || limit != 5 {
		t.Fatalf("limit = %v (%v)", args["limit"], err)
	}
}

func TestUnknownVerbNamesVocabulary(t *testing.T) {
	_, _, err := Parse(map[string]any{"action": "delete"}, clientSpec)
	if err == nil {
		t.Fatal("expected error for unknown verb")
	}
	want := `unknown action "delete"; supported actions: create, get, get_summary, list_recent, search, update`
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestIntCoercion(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(42), 42, true},
		{float64(42.5), 0, false},
		{"123", 123, true},
		{" 7 ", 7, true},
		{map[string]any{"id": float64(9)}, 9, true},
		{map[string]any{"id": "10"}, 10, true},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, err := Int(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("Int(%v) = %d, %v; want %d", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("Int(%v) should fail", c.in)
		}
	}
}

func TestDateCoercion(t *testing.T) {
	want := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	cases := []any{
		"2024-12-25",
		"25/12/2024",
		"25-12-2024",
		map[string]any{"date": "2024-12-25"},
		map[string]any{"value": "25/12/2024"},
		map[string]any{"iso": "2024-12-25"},
		want,
	}
	for _, c := range cases {
		got, err := Date(c)
		if err != nil {
			t.Fatalf("Date(%v): %v", c, err)
		}
		if !got.Equal(want) {
			t.Fatalf("Date(%v) = %v, want %v", c, got, want)
		}
	}

	if _, err := Date("tomorrow"); err == nil {
		t.Fatal("Date should reject free text")
	}
}

func TestRecordsSingletonAndBatch(t *testing.T) {
	single, err := Records(Args{"client_id": float64(7), "date": "2024-11-01"}, "appointments")
	if err != nil {
		t.Fatal(err)
	}
	if len(single) != 1 || single[0]["client_id"] != float64(7) {
		t.Fatalf("singleton records = %v", single)
	}

	batch, err := Records(Args{"appointments": []any{
		map[string]any{"client_id": float64(1)},
		map[string]any{"client_id": float64(2)},
	}}, "appointments")
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch length = %d", len(batch))
	}

	if _, err := Records(Args{"appointments": []any{"not-an-object"}}, "appointments"); err == nil {
		t.Fatal("expected error for non-object record")
	}
}
