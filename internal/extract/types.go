package extract

import (
	"context"
)

// Extractor produces the extracted text for one entity's search results.
//
// searchText is the pre-formatted search-result block; the prompt
// template is extractor configuration, not a per-call argument.
type Extractor interface {
	Extract(ctx context.Context, searchText string) (string, error)
}

// DefaultPrompt is the analysis prompt used when the operator does not
// supply one.
const DefaultPrompt = `Please analyze the search results and provide:
1. A brief summary of the entity
2. Any contact information found
3. Key relevant details

Please format the response in a clear, structured way.`

// SystemPrompt frames every extraction request.
const SystemPrompt = "You are a helpful assistant that extracts and summarizes information from search results."

// NoInformation is returned when the provider responds with empty text.
const NoInformation = "No relevant information could be extracted."

// BuildPrompt interpolates the search text into the operator prompt.
// The template is pass-through: no placeholder syntax is enforced.
func BuildPrompt(prompt, searchText string) string {
	return prompt + "\n\nSearch Results:\n" + searchText
}

// TransientError marks an extraction failure as retryable.
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
