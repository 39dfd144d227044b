package service

import "testing"

func TestParseSectionsExtractsPresent(t *testing.T) {
	reply := "[EXAM]\n• a\n[/EXAM]\n[ORDER]\n• b\n[/ORDER]"
	got := ParseSections(reply)

	if got["exam"] != "• a" {
		t.Fatalf("exam = %q", got["exam"])
	}
	if got["order"] != "• b" {
		t.Fatalf("order = %q", got["order"])
	}
	for _, domain := range []string{"referral", "contact_lens", "appointment", "file", "medical"} {
		if got[domain] != Placeholder {
			t.Fatalf("%s = %q, want placeholder", domain, got[domain])
		}
	}
}

func TestParseSectionsCaseInsensitive(t *testing.T) {
	got := ParseSections("[medical]\n• x\n[/Medical]")
	if got["medical"] != "• x" {
		t.Fatalf("medical = %q", got["medical"])
	}
}

func TestParseSectionsEmptyBodyIsPlaceholder(t *testing.T) {
	got := ParseSections("[EXAM]\n\n[/EXAM]")
	if got["exam"] != Placeholder {
		t.Fatalf("empty section should fall back to placeholder, got %q", got["exam"])
	}
}

func TestIsValidDomain(t *testing.T) {
	for _, d := range Domains() {
		if !IsValidDomain(d) {
			t.Fatalf("%s should be valid", d)
		}
	}
	if IsValidDomain("billing") {
		t.Fatal("billing should be invalid")
	}
}
