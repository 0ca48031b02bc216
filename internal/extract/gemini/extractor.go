package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
	"google.golang.org/genai"
)

const maxOutputTokens = 300

type Config struct {
	APIKey string
	Model  string

	// Prompt is the operator-supplied analysis prompt. Defaults to
	// extract.DefaultPrompt.
	Prompt string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Extractor is the alternate extraction backend over the Gemini API.
type Extractor struct {
	client *genai.Client
	model  string
	prompt string
}

func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = extract.DefaultPrompt
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
		prompt: prompt,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, searchText string) (string, error) {
	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(extract.SystemPrompt+"\n\n"+extract.BuildPrompt(e.prompt, searchText)),
		&genai.GenerateContentConfig{
			CandidateCount:  1,
			MaxOutputTokens: maxOutputTokens,
			Temperature:     genai.Ptr[float32](0.3),
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return extract.NoInformation, nil
	}
	return out, nil
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	// Wrap transient failures so the runner will retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &extract.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &extract.TransientError{Err: err}
	}
	return err
}
