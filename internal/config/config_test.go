package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/palomar-labs/entity-research-pipeline/internal/config"
	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndApply(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  query_template: "What is {entity}?"
  max_retries: 5
  search_delay: 2s
`)
	f, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := pipeline.Options{
		QueryTemplate:  "{entity}",
		MaxRetries:     2,
		RequestTimeout: 30 * time.Second,
		ExtractDelay:   500 * time.Millisecond,
	}
	got, err := f.Pipeline.Apply(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.QueryTemplate != "What is {entity}?" {
		t.Errorf("QueryTemplate = %q", got.QueryTemplate)
	}
	if got.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", got.MaxRetries)
	}
	if got.SearchDelay != 2*time.Second {
		t.Errorf("SearchDelay = %v", got.SearchDelay)
	}
	// Unset fields keep their prior values.
	if got.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", got.RequestTimeout)
	}
	if got.ExtractDelay != 500*time.Millisecond {
		t.Errorf("ExtractDelay = %v", got.ExtractDelay)
	}
}

func TestApply_ZeroMaxRetriesIsExplicit(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  max_retries: 0\n")
	f, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := f.Pipeline.Apply(pipeline.Options{MaxRetries: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MaxRetries != 0 {
		t.Fatalf("MaxRetries = %d, want explicit 0", got.MaxRetries)
	}
}

func TestApply_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  search_delay: fast\n")
	f, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Pipeline.Apply(pipeline.Options{}); err == nil || !strings.Contains(err.Error(), "search_delay") {
		t.Fatalf("expected search_delay error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
