package termsuggest

import (
	"context"
	"strings"

	"github.com/remiges-tech/termsuggest/providers"
)

// SuggestionEngine answers partial-word queries against a suggestion index.
// It only reads from the provider and is safe for concurrent use.
type SuggestionEngine struct {
	provider  providers.Provider
	namespace string
}

// NewSuggestionEngine returns an engine reading namespace through provider.
func NewSuggestionEngine(provider providers.Provider, namespace string) *SuggestionEngine {
	return &SuggestionEngine{provider: provider, namespace: namespace}
}

// Suggest returns up to maxResults whole words completing partial, most frequent first.
//
// partial is lower-cased and accent-folded but neither split nor truncated: a partial
// longer than MaxGramLength matches nothing. The top maxResults postings are taken
// before duplicates are removed, so fewer than maxResults words may come back.
//
// Returns ErrEmptyQuery or ErrInvalidLimit on misuse, and an empty slice when nothing matches.
func (e *SuggestionEngine) Suggest(ctx context.Context, partial string, maxResults int) ([]string, error) {
	if strings.TrimSpace(partial) == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		return nil, ErrInvalidLimit
	}

	postings, err := e.provider.Lookup(ctx, e.namespace, Normalize(partial), maxResults)
	if err != nil {
		return nil, err
	}
	providers.SortPostings(postings)
	if len(postings) > maxResults {
		postings = postings[:maxResults]
	}

	suggestions := make([]string, 0, len(postings))
	seen := make(map[string]struct{}, len(postings))
	for _, p := range postings {
		if _, dup := seen[p.Word]; dup {
			continue
		}
		seen[p.Word] = struct{}{}
		suggestions = append(suggestions, p.Word)
	}
	return suggestions, nil
}
