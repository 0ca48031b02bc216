package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/palomar-labs/entity-research-pipeline/internal/app"
	"github.com/palomar-labs/entity-research-pipeline/internal/config"
	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
	"github.com/palomar-labs/entity-research-pipeline/internal/extract/gemini"
	"github.com/palomar-labs/entity-research-pipeline/internal/extract/groq"
	"github.com/palomar-labs/entity-research-pipeline/internal/pipeline"
	"github.com/palomar-labs/entity-research-pipeline/internal/search/scraperapi"
	"github.com/palomar-labs/entity-research-pipeline/internal/util"
	"github.com/palomar-labs/entity-research-pipeline/internal/version"
)

const (
	defaultQueryTemplate = "Get me information about {entity}"
	defaultGroqModel     = "mixtral-8x7b-32768"
	defaultColumn        = "entity"
)

func main() {
	ctx := context.Background()

	// Local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version":
		fmt.Println(version.Current)
		return
	case "csv":
		os.Exit(runCSV(ctx, os.Args[2:]))
	case "sheets":
		os.Exit(runSheets(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

type commonFlags struct {
	backend       string
	model         string
	prompt        string
	llmBaseURL    string
	queryTemplate string
	maxRetries    int
	requestTimeout time.Duration
	searchDelay    time.Duration
	extractDelay   time.Duration
	configPath     string
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.backend, "backend", "groq", "Extraction backend: groq or gemini (env: BACKEND)")
	fs.StringVar(&cf.model, "model", "", "Model name for the extraction backend (env: GROQ_MODEL / GEMINI_MODEL)")
	fs.StringVar(&cf.prompt, "prompt", "", "Analysis prompt sent with each entity's search results (env: EXTRACT_PROMPT)")
	fs.StringVar(&cf.llmBaseURL, "llm-base-url", "", "Extraction API base URL override (proxies/testing)")
	fs.StringVar(&cf.queryTemplate, "query-template", defaultQueryTemplate, "Search query template; {entity} is replaced per entity (env: QUERY_TEMPLATE)")
	fs.IntVar(&cf.maxRetries, "max-retries", 2, "Max retries per provider call for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&cf.requestTimeout, "request-timeout", 30*time.Second, "Per-call request timeout (env: REQUEST_TIMEOUT)")
	fs.DurationVar(&cf.searchDelay, "search-delay", 500*time.Millisecond, "Minimum spacing between search calls, 0 disables (env: SEARCH_DELAY)")
	fs.DurationVar(&cf.extractDelay, "extract-delay", 500*time.Millisecond, "Minimum spacing between extraction calls, 0 disables (env: EXTRACT_DELAY)")
	fs.StringVar(&cf.configPath, "config", "", "Optional YAML config file (flags and env override it)")
	return cf
}

// assembleOptions layers settings: defaults < config file < env < flags.
func assembleOptions(fs *flag.FlagSet, cf *commonFlags) (pipeline.Options, error) {
	opts := pipeline.Options{
		QueryTemplate:  defaultQueryTemplate,
		MaxRetries:     2,
		RequestTimeout: 30 * time.Second,
		SearchDelay:    500 * time.Millisecond,
		ExtractDelay:   500 * time.Millisecond,
	}

	if strings.TrimSpace(cf.configPath) != "" {
		f, err := config.Load(cf.configPath)
		if err != nil {
			return opts, err
		}
		if opts, err = f.Pipeline.Apply(opts); err != nil {
			return opts, err
		}
	}

	opts.QueryTemplate = envString("QUERY_TEMPLATE", opts.QueryTemplate)

	var err error
	if opts.MaxRetries, err = envInt("MAX_RETRIES", opts.MaxRetries); err != nil {
		return opts, err
	}
	if opts.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", opts.RequestTimeout); err != nil {
		return opts, err
	}
	if opts.SearchDelay, err = envDuration("SEARCH_DELAY", opts.SearchDelay); err != nil {
		return opts, err
	}
	if opts.ExtractDelay, err = envDuration("EXTRACT_DELAY", opts.ExtractDelay); err != nil {
		return opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "query-template":
			opts.QueryTemplate = cf.queryTemplate
		case "max-retries":
			opts.MaxRetries = cf.maxRetries
		case "request-timeout":
			opts.RequestTimeout = cf.requestTimeout
		case "search-delay":
			opts.SearchDelay = cf.searchDelay
		case "extract-delay":
			opts.ExtractDelay = cf.extractDelay
		}
	})
	return opts, nil
}

func newExtractor(ctx context.Context, fs *flag.FlagSet, cf *commonFlags) (extract.Extractor, string, error) {
	backend := strings.TrimSpace(cf.backend)
	if !flagWasSet(fs, "backend") {
		backend = envString("BACKEND", backend)
	}
	prompt := strings.TrimSpace(cf.prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(os.Getenv("EXTRACT_PROMPT"))
	}

	switch backend {
	case "groq":
		model := strings.TrimSpace(cf.model)
		if model == "" {
			model = strings.TrimSpace(os.Getenv("GROQ_MODEL"))
		}
		if model == "" {
			model = defaultGroqModel
		}
		ex, err := groq.New(groq.Config{
			APIKey:  os.Getenv("GROQ_API_KEY"),
			Model:   model,
			Prompt:  prompt,
			BaseURL: cf.llmBaseURL,
		})
		return ex, model, err
	case "gemini":
		model := strings.TrimSpace(cf.model)
		if model == "" {
			model = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
		}
		ex, err := gemini.New(ctx, gemini.Config{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   model,
			Prompt:  prompt,
			BaseURL: cf.llmBaseURL,
		})
		return ex, model, err
	default:
		return nil, "", fmt.Errorf("unknown backend %q (want groq or gemini)", backend)
	}
}

func runCSV(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("csv", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cf := registerCommon(fs)
	var inputPath string
	var outputPath string
	var column string
	fs.StringVar(&inputPath, "input", "", "Input CSV file path")
	fs.StringVar(&outputPath, "output", "", "Output CSV file path")
	fs.StringVar(&column, "column", defaultColumn, "Name of the entity column in the input")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" || outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "csv requires --input and --output")
		return 2
	}

	opts, err := assembleOptions(fs, cf)
	if err != nil {
		return configError(err)
	}
	searcher, err := scraperapi.New(scraperapi.Config{APIKey: os.Getenv("SCRAPERAPI_KEY")})
	if err != nil {
		return configError(err)
	}
	extractor, model, err := newExtractor(ctx, fs, cf)
	if err != nil {
		return configError(err)
	}
	opts.Model = model

	if err := app.RunCSV(ctx, app.CSVJob{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Column:     column,
	}, opts, searcher, extractor); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "csv run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runSheets(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sheets", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cf := registerCommon(fs)
	var credentialsPath string
	var sheetURL string
	var column string
	var outputPath string
	var appendBack bool
	fs.StringVar(&credentialsPath, "credentials", "", "Service-account credentials JSON file path (env: GOOGLE_APPLICATION_CREDENTIALS)")
	fs.StringVar(&sheetURL, "sheet-url", "", "Google Sheet URL to read entities from")
	fs.StringVar(&column, "column", defaultColumn, "Name of the entity column in the sheet")
	fs.StringVar(&outputPath, "output", "", "Optional output CSV file path")
	fs.BoolVar(&appendBack, "append", false, "Append result rows back to the sheet")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if credentialsPath == "" {
		credentialsPath = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if credentialsPath == "" || sheetURL == "" {
		_, _ = fmt.Fprintln(os.Stderr, "sheets requires --credentials (or GOOGLE_APPLICATION_CREDENTIALS) and --sheet-url")
		return 2
	}
	if outputPath == "" && !appendBack {
		_, _ = fmt.Fprintln(os.Stderr, "sheets requires --output and/or --append")
		return 2
	}

	opts, err := assembleOptions(fs, cf)
	if err != nil {
		return configError(err)
	}
	searcher, err := scraperapi.New(scraperapi.Config{APIKey: os.Getenv("SCRAPERAPI_KEY")})
	if err != nil {
		return configError(err)
	}
	extractor, model, err := newExtractor(ctx, fs, cf)
	if err != nil {
		return configError(err)
	}
	opts.Model = model

	if err := app.RunSheets(ctx, app.SheetsJob{
		CredentialsPath: credentialsPath,
		SheetURL:        sheetURL,
		Column:          column,
		OutputPath:      outputPath,
		Append:          appendBack,
	}, opts, searcher, extractor); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sheets run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func configError(err error) int {
	_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
	return 2
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `researcher: entity research pipeline (web search + LLM extraction)

Usage:
  researcher <command> [flags]

Commands:
  csv      Research entities from a local CSV and write an output CSV
  sheets   Research entities from a Google Sheet (CSV export and/or sheet append)
  version  Print the version

Examples:
  researcher csv --input companies.csv --output researched.csv --column company
  researcher sheets --credentials sa.json --sheet-url https://docs.google.com/spreadsheets/d/<id>/edit --append

Environment:
  SCRAPERAPI_KEY   ScraperAPI key for web search (required)
  GROQ_API_KEY     Groq API key (backend=groq)
  GROQ_MODEL       Groq model name (default %s)
  GEMINI_API_KEY   Gemini API key (backend=gemini)
  GEMINI_MODEL     Gemini model name (required for backend=gemini)
  BACKEND          Extraction backend, groq or gemini (default groq)
  EXTRACT_PROMPT   Analysis prompt override
  QUERY_TEMPLATE   Search query template ({entity} placeholder)
  MAX_RETRIES, REQUEST_TIMEOUT, SEARCH_DELAY, EXTRACT_DELAY
                   Pipeline tuning knobs; flags override

A .env file in the working directory is loaded if present.
`, defaultGroqModel)
}

func envString(varName, fallback string) string {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
