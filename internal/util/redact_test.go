package util_test

import (
	"strings"
	"testing"

	"github.com/palomar-labs/entity-research-pipeline/internal/util"
)

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		notWant string
	}{
		{
			name:    "bearer_token",
			in:      `request failed: Authorization: Bearer sk-abc123.def`,
			want:    "Bearer <redacted>",
			notWant: "sk-abc123",
		},
		{
			name:    "api_key_query_param",
			in:      "GET https://api.scraperapi.com/?api_key=SECRET123&url=x: 401",
			want:    "<redacted_kv>",
			notWant: "SECRET123",
		},
		{
			name:    "groq_key_assignment",
			in:      "GROQ_API_KEY=gsk_live_abc is invalid",
			want:    "<redacted_kv>",
			notWant: "gsk_live_abc",
		},
		{
			name: "plain_message_untouched",
			in:   "search request failed with status 502",
			want: "search request failed with status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := util.RedactSecrets(tt.in)
			if !strings.Contains(got, tt.want) {
				t.Fatalf("RedactSecrets(%q) = %q, want it to contain %q", tt.in, got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Fatalf("RedactSecrets(%q) = %q, still contains %q", tt.in, got, tt.notWant)
			}
		})
	}
}

func TestRedactSecretsEmpty(t *testing.T) {
	if got := util.RedactSecrets(""); got != "" {
		t.Fatalf("RedactSecrets(\"\") = %q", got)
	}
}
