package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline/runner"
	"github.com/palomar-labs/entity-research-pipeline/internal/search"
	"github.com/palomar-labs/entity-research-pipeline/internal/util"
)

// Row is the stable output schema: one row per input entity, always.
type Row struct {
	Entity        string
	SearchResults string
	ResultCount   int
	Extracted     string
	Status        string
	Error         string
	Model         string
}

// Terminal per-entity statuses.
const (
	StatusOK            = "ok"
	StatusSearchFailed  = "search_failed"
	StatusExtractFailed = "extract_failed"
)

type Options struct {
	QueryTemplate  string
	MaxRetries     int
	RequestTimeout time.Duration
	SearchDelay    time.Duration
	ExtractDelay   time.Duration

	// Model labels output rows with the extraction model in use.
	Model string

	// Progress receives (done, total) after each entity completes.
	Progress func(done, total int)
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"entity",
		"search_results",
		"result_count",
		"extracted",
		"status",
		"error",
		"model",
	}
}

// ResearchEntities runs search + extraction over all entities and
// returns stable output rows.
//
// Provider errors are recorded per-row and do not fail the full run.
func ResearchEntities(ctx context.Context, entities []string, searcher search.Searcher, extractor extract.Extractor, opts Options) ([]Row, error) {
	out, err := runner.ResearchAll(ctx, entities, searcher, extractor, runner.Options{
		QueryTemplate:     opts.QueryTemplate,
		MaxRetries:        opts.MaxRetries,
		RequestTimeout:    opts.RequestTimeout,
		SearchDelay:       opts.SearchDelay,
		ExtractDelay:      opts.ExtractDelay,
		BackoffInitial:    200 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		BackoffJitterFrac: 0.2,
		Progress:          opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(out))
	for _, item := range out {
		row := Row{
			Entity:        item.Entity,
			SearchResults: jsonArrayOrEmpty(item.Records),
			ResultCount:   len(item.Records),
			Extracted:     item.Extracted,
			Status:        StatusOK,
			Model:         opts.Model,
		}
		switch {
		case item.SearchErr != nil:
			row.Status = StatusSearchFailed
			row.Error = util.RedactSecrets(item.SearchErr.Error())
		case item.ExtractErr != nil:
			row.Status = StatusExtractFailed
			row.Error = util.RedactSecrets(item.ExtractErr.Error())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonArrayOrEmpty(records []search.Record) string {
	if len(records) == 0 {
		return ""
	}
	b, err := json.Marshal(records)
	if err != nil {
		// Should not happen for []search.Record, but keep output stable.
		return ""
	}
	return string(b)
}
