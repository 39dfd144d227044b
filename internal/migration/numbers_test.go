package migration

import "testing"

func TestSerializeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		nil_ bool
	}{
		{in: "125", want: "1.25"},
		{in: "-075", want: "-0.75"},
		{in: "1.50", want: "1.50"},
		{in: "1,50", want: "1.50"},
		{in: "", nil_: true},
		{in: "   ", nil_: true},
		{in: "5", want: "5"},
		{in: "abc", want: "abc"},
	}

	for _, tc := range cases {
		got := SerializeNumber(tc.in)
		if tc.nil_ {
			if got != nil {
				t.Fatalf("SerializeNumber(%q) = %q, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Fatalf("SerializeNumber(%q) = %v, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSerializeNumberIdempotent(t *testing.T) {
	once := SerializeNumber("225")
	twice := SerializeNumber(*once)
	if *twice != "2.25" {
		t.Fatalf("second pass changed value: %q", *twice)
	}
}

func TestParseVisualAcuity(t *testing.T) {
	if got := ParseVisualAcuity("12"); got == nil || *got != 1.2 {
		t.Fatalf("ParseVisualAcuity(12) = %v, want 1.2", got)
	}
	if got := ParseVisualAcuity("0.8"); got == nil || *got != 0.8 {
		t.Fatalf("ParseVisualAcuity(0.8) = %v, want 0.8", got)
	}
	if got := ParseVisualAcuity(""); got != nil {
		t.Fatalf("ParseVisualAcuity(empty) = %v, want nil", got)
	}
}

func TestCompositeClientID(t *testing.T) {
	id, err := CompositeClientID(5, "A0123")
	if err != nil {
		t.Fatalf("CompositeClientID: %v", err)
	}
	if id != 50123 {
		t.Fatalf("CompositeClientID(5, A0123) = %d, want 50123", id)
	}

	if code := ExtractAccountCode(id, 5); code != "0123" {
		t.Fatalf("ExtractAccountCode(50123, 5) = %q, want 0123", code)
	}
}

func TestCompositeClientIDNoDigits(t *testing.T) {
	if _, err := CompositeClientID(5, "ABC"); err == nil {
		t.Fatal("expected error for account code without digits")
	}
}
