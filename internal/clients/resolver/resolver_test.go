package resolver

import (
	"context"
	"testing"

	"opticai_backend/internal/clients/repository"
	"opticai_backend/internal/tenancy"
)

type staticSource []repository.Client

func (s staticSource) ListByScope(ctx context.Context, scope tenancy.Scope) ([]repository.Client, error) {
	return s, nil
}

func strptr(v string) *string { return &v }

func scope() tenancy.Scope {
	clinic := int64(3)
	return tenancy.Scope{CompanyID: 1, ClinicID: &clinic}
}

func TestResolve_EmptyQuery(t *testing.T) {
	r := New(staticSource{})
	result, err := r.Resolve(context.Background(), "  ", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Exact) != 0 || result.Message != MsgEmptyQuery {
		t.Fatalf("expected empty-query result, got %+v", result)
	}
}

func TestResolve_ExactNameBeatsFuzzy(t *testing.T) {
	r := New(staticSource{
		{ID: 7, FirstName: "דנה", LastName: "כהן"},
		{ID: 12, FirstName: "כהנא", LastName: ""},
	})

	result, err := r.Resolve(context.Background(), "כהן", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Exact) != 1 || result.Exact[0].ID != 7 {
		t.Fatalf("expected exact match on client 7, got %+v", result.Exact)
	}
	if len(result.Suggestions) != 0 {
		t.Fatalf("exact match must suppress suggestions, got %+v", result.Suggestions)
	}
}

func TestResolve_PhoneSubstringWins(t *testing.T) {
	r := New(staticSource{
		{ID: 1, FirstName: "Noa", LastName: "Levi", PhoneMobile: strptr("+972501234567")},
		{ID: 2, FirstName: "Noam", LastName: "Levin"},
	})

	result, err := r.Resolve(context.Background(), "0501234", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Exact) != 1 || result.Exact[0].ID != 1 {
		t.Fatalf("expected phone substring match, got %+v", result)
	}
}

func TestResolve_FuzzySuggestionsWithDidYouMean(t *testing.T) {
	r := New(staticSource{
		{ID: 1, FirstName: "John", LastName: "Smith"},
		{ID: 2, FirstName: "Jon", LastName: "Smyth"},
	})

	result, err := r.Resolve(context.Background(), "Jon Smith", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Exact) != 0 {
		t.Fatalf("expected no exact matches, got %+v", result.Exact)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("expected two suggestions, got %+v", result.Suggestions)
	}
	if result.Suggestions[0].Score < result.Suggestions[1].Score {
		t.Fatalf("suggestions not sorted by score: %+v", result.Suggestions)
	}
	if result.Suggestions[0].Score >= didYouMeanThreshold && result.DidYouMean == "" {
		t.Fatalf("expected did_you_mean for top score %d", result.Suggestions[0].Score)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	source := staticSource{
		{ID: 1, FirstName: "Dana", LastName: "Cohen"},
		{ID: 2, FirstName: "Dana", LastName: "Cohen"},
	}
	r := New(source)

	first, err := r.Resolve(context.Background(), "Dana Kohen", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), "Dana Kohen", scope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first.Suggestions) != len(second.Suggestions) {
		t.Fatalf("nondeterministic suggestion count")
	}
	for i := range first.Suggestions {
		if first.Suggestions[i].Client.ID != second.Suggestions[i].Client.ID ||
			first.Suggestions[i].Score != second.Suggestions[i].Score {
			t.Fatalf("nondeterministic ordering at %d", i)
		}
	}
	// Equal scores break ties by id ascending.
	if len(first.Suggestions) == 2 && first.Suggestions[0].Score == first.Suggestions[1].Score {
		if first.Suggestions[0].Client.ID != 1 {
			t.Fatalf("tie not broken by id: %+v", first.Suggestions)
		}
	}
}
