package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline"
	"github.com/palomar-labs/entity-research-pipeline/internal/search"
)

type stubSearcher struct {
	records map[string][]search.Record
	errs    map[string]error
	calls   []string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Record, error) {
	s.calls = append(s.calls, query)
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.records[query], nil
}

type stubExtractor struct {
	err   error
	calls []string
}

func (e *stubExtractor) Extract(_ context.Context, searchText string) (string, error) {
	e.calls = append(e.calls, searchText)
	if e.err != nil {
		return "", e.err
	}
	return "summary", nil
}

func TestResearchEntities_OneRowPerEntityInOrder(t *testing.T) {
	searcher := &stubSearcher{
		records: map[string][]search.Record{
			"Acme Corp": {
				{Title: "Acme", Link: "https://acme.test", Snippet: "widgets"},
				{Title: "Acme wiki", Link: "https://wiki.test/acme", Snippet: "history"},
			},
		},
		errs: map[string]error{
			"Globex": errors.New("connection refused"),
		},
	}
	extractor := &stubExtractor{}

	rows, err := pipeline.ResearchEntities(context.Background(), []string{" Acme Corp ", "Globex", ""}, searcher, extractor, pipeline.Options{Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].Entity != "Acme Corp" || rows[0].Status != pipeline.StatusOK || rows[0].Extracted != "summary" {
		t.Fatalf("unexpected row[0]: %#v", rows[0])
	}
	if rows[0].ResultCount != 2 || !strings.Contains(rows[0].SearchResults, "https://acme.test") {
		t.Fatalf("unexpected row[0] results: %#v", rows[0])
	}
	if rows[0].Model != "test-model" {
		t.Fatalf("unexpected row[0] model: %q", rows[0].Model)
	}

	if rows[1].Entity != "Globex" || rows[1].Status != pipeline.StatusSearchFailed {
		t.Fatalf("unexpected row[1]: %#v", rows[1])
	}
	if rows[1].ResultCount != 0 || rows[1].SearchResults != "" || rows[1].Extracted != "" {
		t.Fatalf("search failure must leave an empty result set: %#v", rows[1])
	}
	if !strings.Contains(rows[1].Error, "connection refused") {
		t.Fatalf("unexpected row[1] error: %q", rows[1].Error)
	}

	if rows[2].Status != pipeline.StatusSearchFailed || rows[2].Error != "empty entity" {
		t.Fatalf("unexpected row[2]: %#v", rows[2])
	}

	// The failed and blank entities must never reach the extractor.
	if len(extractor.calls) != 1 {
		t.Fatalf("expected 1 extractor call, got %d", len(extractor.calls))
	}
	if !strings.Contains(extractor.calls[0], "Title: Acme\n") {
		t.Fatalf("unexpected extractor input: %q", extractor.calls[0])
	}
}

func TestResearchEntities_ExtractFailureKeepsSearchResults(t *testing.T) {
	searcher := &stubSearcher{
		records: map[string][]search.Record{
			"Acme Corp": {{Title: "Acme", Link: "https://acme.test", Snippet: "widgets"}},
		},
	}
	extractor := &stubExtractor{err: errors.New("model overloaded")}

	rows, err := pipeline.ResearchEntities(context.Background(), []string{"Acme Corp"}, searcher, extractor, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Status != pipeline.StatusExtractFailed {
		t.Fatalf("unexpected status: %q", rows[0].Status)
	}
	if rows[0].ResultCount != 1 || rows[0].SearchResults == "" {
		t.Fatalf("extract failure must keep the search results: %#v", rows[0])
	}
	if !strings.Contains(rows[0].Error, "model overloaded") {
		t.Fatalf("unexpected error text: %q", rows[0].Error)
	}
}

func TestResearchEntities_ProgressCountsMonotonic(t *testing.T) {
	searcher := &stubSearcher{errs: map[string]error{"b": errors.New("boom")}}
	extractor := &stubExtractor{}

	var got []string
	_, err := pipeline.ResearchEntities(context.Background(), []string{"a", "b", "c"}, searcher, extractor, pipeline.Options{
		Progress: func(done, total int) {
			got = append(got, fmt.Sprintf("%d/%d", done, total))
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"1/3", "2/3", "3/3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("progress calls = %v, want %v", got, want)
	}
}

func TestResearchEntities_Idempotent(t *testing.T) {
	entities := []string{"Acme Corp", "Globex"}
	newStubs := func() (*stubSearcher, *stubExtractor) {
		return &stubSearcher{
			records: map[string][]search.Record{
				"Acme Corp": {{Title: "Acme", Link: "https://acme.test", Snippet: "widgets"}},
			},
			errs: map[string]error{"Globex": errors.New("boom")},
		}, &stubExtractor{}
	}

	s1, e1 := newStubs()
	first, err := pipeline.ResearchEntities(context.Background(), entities, s1, e1, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, e2 := newStubs()
	second, err := pipeline.ResearchEntities(context.Background(), entities, s2, e2, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-run differs:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestResearchEntities_QueryTemplate(t *testing.T) {
	searcher := &stubSearcher{}
	extractor := &stubExtractor{}

	_, err := pipeline.ResearchEntities(context.Background(), []string{"Acme Corp"}, searcher, extractor, pipeline.Options{
		QueryTemplate: "Get me information about {entity}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.calls) != 1 || searcher.calls[0] != "Get me information about Acme Corp" {
		t.Fatalf("unexpected search queries: %v", searcher.calls)
	}
}
