package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"

	// maxOutputTokens bounds the completion length as a request
	// parameter; no local truncation is applied.
	maxOutputTokens = 300
	temperature     = 0.3
	topP            = 1.0
)

type Config struct {
	APIKey string
	Model  string

	// Prompt is the operator-supplied analysis prompt. Defaults to
	// extract.DefaultPrompt.
	Prompt string

	// BaseURL overrides the Groq API base URL. Useful for proxies/testing.
	BaseURL string

	HTTPClient *http.Client
}

// Extractor calls the Groq OpenAI-compatible chat-completions endpoint.
type Extractor struct {
	apiKey  string
	model   string
	prompt  string
	baseURL string
	http    *http.Client
}

func New(cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GROQ_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GROQ_MODEL is required")
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = extract.DefaultPrompt
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Extractor{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		prompt:  prompt,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// errorEnvelope is the OpenAI-style error shape Groq returns on non-2xx.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (e *Extractor) Extract(ctx context.Context, searchText string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: extract.SystemPrompt},
			{Role: "user", Content: extract.BuildPrompt(e.prompt, searchText)},
		},
		Temperature: temperature,
		MaxTokens:   maxOutputTokens,
		TopP:        topP,
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("groq: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		statusErr := newStatusError(resp, body)
		if resp.StatusCode == 429 || resp.StatusCode/100 == 5 {
			return "", &extract.TransientError{Err: statusErr}
		}
		return "", statusErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("groq: parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq: completion response has no choices")
	}

	out := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if out == "" {
		return extract.NoInformation, nil
	}
	return out, nil
}

// newStatusError summarizes a non-2xx response without echoing the raw
// body (it can carry request fragments).
func newStatusError(resp *http.Response, body []byte) error {
	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		parts := []string{fmt.Sprintf("groq api error: status=%s", resp.Status)}
		if strings.TrimSpace(env.Error.Type) != "" {
			parts = append(parts, "type="+strings.TrimSpace(env.Error.Type))
		}
		if strings.TrimSpace(env.Error.Code) != "" {
			parts = append(parts, "code="+strings.TrimSpace(env.Error.Code))
		}
		if strings.TrimSpace(env.Error.Message) != "" {
			parts = append(parts, "message="+strings.TrimSpace(env.Error.Message))
		}
		if len(parts) > 1 {
			return fmt.Errorf("%s", strings.Join(parts, " "))
		}
	}
	return fmt.Errorf("groq api error: status=%s", resp.Status)
}
