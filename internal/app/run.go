package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline"
	"github.com/palomar-labs/entity-research-pipeline/internal/search"
	"github.com/palomar-labs/entity-research-pipeline/internal/source"
	"github.com/palomar-labs/entity-research-pipeline/internal/source/gsheets"
)

// CSVJob reads entities from a local CSV and writes a local output CSV.
type CSVJob struct {
	InputPath  string
	OutputPath string
	Column     string
}

// SheetsJob reads entities from a Google Sheet; results go to a local
// CSV and/or get appended back to the same sheet.
type SheetsJob struct {
	CredentialsPath string
	SheetURL        string
	Column          string
	OutputPath      string
	Append          bool
}

// RunCSV reads a local input CSV of entities and writes a local output
// CSV of research rows.
func RunCSV(ctx context.Context, job CSVJob, opts pipeline.Options, searcher search.Searcher, extractor extract.Extractor) error {
	logf, runStart := newRunLog()

	inF, err := os.Open(job.InputPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = inF.Close()
	}()

	loadStart := time.Now()
	entities, err := source.ReadEntitiesCSV(inF, job.Column)
	if err != nil {
		return err
	}
	logf("loaded %d entities from %s in %s", len(entities), job.InputPath, time.Since(loadStart).Round(time.Millisecond))

	rows, err := researchAll(ctx, logf, entities, searcher, extractor, opts)
	if err != nil {
		return err
	}

	outF, err := os.Create(job.OutputPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = outF.Close()
	}()
	if err := pipeline.WriteCSV(outF, rows); err != nil {
		return err
	}
	if err := outF.Close(); err != nil {
		return err
	}
	logf("csv run complete: output=%s totalDuration=%s", job.OutputPath, time.Since(runStart).Round(time.Millisecond))
	return nil
}

// RunSheets reads the entity column from a Google Sheet and exports the
// results as a local CSV and/or a write-back append to the same sheet.
func RunSheets(ctx context.Context, job SheetsJob, opts pipeline.Options, searcher search.Searcher, extractor extract.Extractor) error {
	logf, runStart := newRunLog()

	creds, err := os.ReadFile(job.CredentialsPath)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	client, err := gsheets.New(ctx, creds)
	if err != nil {
		return err
	}
	spreadsheetID, err := gsheets.SpreadsheetID(job.SheetURL)
	if err != nil {
		return err
	}

	loadStart := time.Now()
	entities, err := client.ReadColumn(ctx, spreadsheetID, job.Column)
	if err != nil {
		return err
	}
	logf("loaded %d entities from sheet %s in %s", len(entities), spreadsheetID, time.Since(loadStart).Round(time.Millisecond))

	rows, err := researchAll(ctx, logf, entities, searcher, extractor, opts)
	if err != nil {
		return err
	}

	if job.OutputPath != "" {
		outF, err := os.Create(job.OutputPath)
		if err != nil {
			return err
		}
		defer func() {
			_ = outF.Close()
		}()
		if err := pipeline.WriteCSV(outF, rows); err != nil {
			return err
		}
		if err := outF.Close(); err != nil {
			return err
		}
		logf("wrote %d rows to %s", len(rows), job.OutputPath)
	}

	if job.Append {
		writeStart := time.Now()
		if err := client.AppendRows(ctx, spreadsheetID, rowsToCells(rows)); err != nil {
			return err
		}
		logf("appended %d rows to sheet %s in %s", len(rows), spreadsheetID, time.Since(writeStart).Round(time.Millisecond))
	}

	logf("sheets run complete: totalDuration=%s", time.Since(runStart).Round(time.Millisecond))
	return nil
}

func newRunLog() (func(format string, args ...any), time.Time) {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	return logf, time.Now()
}

func researchAll(
	ctx context.Context,
	logf func(format string, args ...any),
	entities []string,
	searcher search.Searcher,
	extractor extract.Extractor,
	opts pipeline.Options,
) ([]pipeline.Row, error) {
	researchStart := time.Now()
	progress := opts.Progress
	opts.Progress = func(done, total int) {
		logf("progress %d/%d elapsed=%s", done, total, time.Since(researchStart).Round(time.Millisecond))
		if progress != nil {
			progress(done, total)
		}
	}

	rows, err := pipeline.ResearchEntities(ctx, entities, searcher, extractor, opts)
	if err != nil {
		return nil, err
	}

	okRows, searchFailed, extractFailed := countStatuses(rows)
	logf(
		"research complete: produced=%d ok=%d search_failed=%d extract_failed=%d duration=%s",
		len(rows),
		okRows,
		searchFailed,
		extractFailed,
		time.Since(researchStart).Round(time.Millisecond),
	)
	return rows, nil
}

func countStatuses(rows []pipeline.Row) (okRows, searchFailed, extractFailed int) {
	for _, row := range rows {
		switch row.Status {
		case pipeline.StatusSearchFailed:
			searchFailed++
		case pipeline.StatusExtractFailed:
			extractFailed++
		default:
			okRows++
		}
	}
	return okRows, searchFailed, extractFailed
}

func rowsToCells(rows []pipeline.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Entity,
			r.SearchResults,
			strconv.Itoa(r.ResultCount),
			r.Extracted,
			r.Status,
			r.Error,
			r.Model,
		})
	}
	return out
}
