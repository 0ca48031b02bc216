package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// File is the optional on-disk configuration. Flags and environment
// variables override anything set here.
type File struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline mirrors pipeline.Options with YAML-friendly field types.
// Durations use time.ParseDuration syntax ("500ms", "30s").
type Pipeline struct {
	QueryTemplate  string `yaml:"query_template"`
	MaxRetries     *int   `yaml:"max_retries"`
	RequestTimeout string `yaml:"request_timeout"`
	SearchDelay    string `yaml:"search_delay"`
	ExtractDelay   string `yaml:"extract_delay"`
}

func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

// Apply overlays the file's pipeline settings onto opts. Unset fields
// leave opts untouched.
func (p Pipeline) Apply(opts pipeline.Options) (pipeline.Options, error) {
	if strings.TrimSpace(p.QueryTemplate) != "" {
		opts.QueryTemplate = p.QueryTemplate
	}
	if p.MaxRetries != nil {
		opts.MaxRetries = *p.MaxRetries
	}
	var err error
	if opts.RequestTimeout, err = overlayDuration(p.RequestTimeout, "request_timeout", opts.RequestTimeout); err != nil {
		return opts, err
	}
	if opts.SearchDelay, err = overlayDuration(p.SearchDelay, "search_delay", opts.SearchDelay); err != nil {
		return opts, err
	}
	if opts.ExtractDelay, err = overlayDuration(p.ExtractDelay, "extract_delay", opts.ExtractDelay); err != nil {
		return opts, err
	}
	return opts, nil
}

func overlayDuration(raw, field string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", field, raw, err)
	}
	return d, nil
}
