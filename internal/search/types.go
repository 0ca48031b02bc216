package search

import (
	"context"
	"strings"
)

// Record is one parsed search-result item.
//
// Missing title/snippet are empty strings, not errors; Link is always a
// fully-qualified http(s) URL.
type Record struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher performs one web search for a single query and returns the
// parsed result records in provider relevance order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Record, error)
}

// TransientError marks a search failure as retryable.
//
// Runners should retry transient failures with backoff rather than
// immediately recording the entity as failed.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FormatRecords renders records as the plain-text block handed to an
// extractor prompt.
func FormatRecords(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Title: " + r.Title + "\n")
		b.WriteString("Snippet: " + r.Snippet + "\n")
		b.WriteString("Link: " + r.Link + "\n")
	}
	return b.String()
}
