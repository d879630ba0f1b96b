package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"

	"aria/backend/internal/serpapi"
)

const searchResultCount = 5

// Searcher is the external web-search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]serpapi.SearchResult, error)
}

// Augmenter fetches a bounded set of web results for a message and renders
// them as a prompt context block. Search failure never aborts a turn: any
// error is logged and the turn continues without search context.
type Augmenter struct {
	searcher Searcher
}

func NewAugmenter(searcher Searcher) Augmenter {
	return Augmenter{searcher: searcher}
}

func (a Augmenter) Augment(ctx context.Context, message string) ([]serpapi.SearchResult, string) {
	if a.searcher == nil {
		return nil, ""
	}

	results, err := a.searcher.Search(ctx, message, searchResultCount)
	if err != nil {
		log.Printf("web search failed: err=%v", err)
		return nil, ""
	}
	if len(results) == 0 {
		return nil, ""
	}

	return results, renderSearchContext(message, results)
}

func renderSearchContext(message string, results []serpapi.SearchResult) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "\n\n[Web Search Results for: %q]\n", message)
	for i, result := range results {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		fmt.Fprintf(&builder, "%d. %s\n   %s\n   Source: %s", i+1, result.Title, result.Snippet, result.URL)
	}
	builder.WriteString("\n\n[End of Search Results]\n\nPlease provide a comprehensive answer based on the above search results and your knowledge.")

	return builder.String()
}
