// Package resolver implements fuzzy client lookup over a tenant scope.
// The assistant's client tool uses it directly, and the appointment and exam
// tools use it to resolve free-text client references before fetching rows.
package resolver

import (
	"context"
	"sort"
	"strings"

	"opticai_backend/internal/clients/repository"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/phone"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

const (
	// suggestionThreshold is the minimum weighted-ratio score kept.
	suggestionThreshold = 60
	// didYouMeanThreshold promotes the top suggestion to a correction hint.
	didYouMeanThreshold = 85
	// maxSuggestions caps the fuzzy candidate list.
	maxSuggestions = 5
)

// Messages shown to staff (Hebrew-facing product).
const (
	MsgEmptyQuery   = "שדה החיפוש ריק"
	MsgExactMatches = "נמצאו התאמות מדויקות"
	MsgDidYouMean   = "לא נמצאה התאמה מדויקת, אולי התכוונת ל:"
	MsgNoMatches    = "לא נמצאו מטופלים תואמים"
)

// Suggestion is a fuzzy candidate with its similarity score.
type Suggestion struct {
	Client repository.Client `json:"client"`
	Score  int               `json:"score"`
}

// Result is the resolver's answer for one query.
type Result struct {
	Exact       []repository.Client `json:"exact"`
	Suggestions []Suggestion        `json:"suggestions"`
	DidYouMean  string              `json:"did_you_mean,omitempty"`
	Message     string              `json:"message"`
}

// ClientSource loads the candidate set for a scope.
type ClientSource interface {
	ListByScope(ctx context.Context, scope tenancy.Scope) ([]repository.Client, error)
}

// Resolver matches free-text queries against the scoped client set.
type Resolver struct {
	source ClientSource
}

// New creates a resolver over the given client source.
func New(source ClientSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve runs the exact pass and, when it comes up empty, the fuzzy pass.
// Scores are deterministic for a given candidate set: ties are broken by
// client id ascending.
func (r *Resolver) Resolve(ctx context.Context, query string, scope tenancy.Scope) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Exact: []repository.Client{}, Message: MsgEmptyQuery}, nil
	}

	clients, err := r.source.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	exact := exactPass(query, clients)
	if len(exact) > 0 {
		return &Result{Exact: exact, Suggestions: []Suggestion{}, Message: MsgExactMatches}, nil
	}

	suggestions := fuzzyPass(query, clients)
	result := &Result{Exact: []repository.Client{}, Suggestions: suggestions}
	if len(suggestions) == 0 {
		result.Message = MsgNoMatches
		return result, nil
	}

	result.Message = MsgDidYouMean
	if suggestions[0].Score >= didYouMeanThreshold {
		result.DidYouMean = suggestions[0].Client.FullName()
	}
	return result, nil
}

// exactPass matches case-insensitive name equality and substring hits on
// phone_mobile or national_id. A phone query is also tried in E.164 form so
// "050-1234567" still finds "+972501234567".
func exactPass(query string, clients []repository.Client) []repository.Client {
	lowered := strings.ToLower(query)
	normalizedPhone := phone.NormalizeE164(query)

	matches := make([]repository.Client, 0)
	for _, c := range clients {
		if strings.ToLower(c.FirstName) == lowered ||
			strings.ToLower(c.LastName) == lowered ||
			strings.ToLower(c.FullName()) == lowered {
			matches = append(matches, c)
			continue
		}
		if c.PhoneMobile != nil && (strings.Contains(*c.PhoneMobile, query) ||
			(normalizedPhone != query && strings.Contains(*c.PhoneMobile, normalizedPhone))) {
			matches = append(matches, c)
			continue
		}
		if c.NationalID != nil && strings.Contains(*c.NationalID, query) {
			matches = append(matches, c)
		}
	}
	return matches
}

// fuzzyPass scores each candidate's full name with the weighted ratio, which
// is order-insensitive and tolerates partial tokens.
func fuzzyPass(query string, clients []repository.Client) []Suggestion {
	scored := make([]Suggestion, 0)
	for _, c := range clients {
		name := c.FullName()
		if name == "" {
			continue
		}
		score := fuzzy.WRatio(query, name)
		if score >= suggestionThreshold {
			scored = append(scored, Suggestion{Client: c, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Client.ID < scored[j].Client.ID
	})

	if len(scored) > maxSuggestions {
		scored = scored[:maxSuggestions]
	}
	return scored
}
