package ai

import (
	"errors"
	"testing"

	"github.com/recountlabs/recount/internal/common"
)

func TestParseExplanation(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantText       string
		wantConfidence int
		wantErr        bool
	}{
		{
			name:           "plain JSON",
			input:          `{"explanation": "Amounts and dates line up.", "confidence": 85}`,
			wantText:       "Amounts and dates line up.",
			wantConfidence: 85,
		},
		{
			name: "json markdown fence",
			input: "```json\n" +
				`{"explanation": "Exact amount match.", "confidence": 70}` +
				"\n```",
			wantText:       "Exact amount match.",
			wantConfidence: 70,
		},
		{
			name: "bare markdown fence",
			input: "```\n" +
				`{"explanation": "Invoice number appears in the memo.", "confidence": 95}` +
				"\n```",
			wantText:       "Invoice number appears in the memo.",
			wantConfidence: 95,
		},
		{
			name:           "confidence zero is valid",
			input:          `{"explanation": "Weak pairing.", "confidence": 0}`,
			wantText:       "Weak pairing.",
			wantConfidence: 0,
		},
		{
			name:    "not JSON",
			input:   "The amounts match because...",
			wantErr: true,
		},
		{
			name:    "empty explanation",
			input:   `{"explanation": "", "confidence": 50}`,
			wantErr: true,
		},
		{
			name:    "missing confidence",
			input:   `{"explanation": "Looks right."}`,
			wantErr: true,
		},
		{
			name:    "confidence above 100",
			input:   `{"explanation": "Looks right.", "confidence": 150}`,
			wantErr: true,
		},
		{
			name:    "negative confidence",
			input:   `{"explanation": "Looks right.", "confidence": -1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExplanation(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatal("parseExplanation() expected error, got nil")
				}
				// Malformed output never heals on retry.
				var retryable *common.RetryableError
				if !errors.As(err, &retryable) || retryable.Retryable {
					t.Errorf("parseExplanation() error = %v, want non-retryable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExplanation() error = %v", err)
			}
			if got.Explanation != tt.wantText {
				t.Errorf("Explanation = %q, want %q", got.Explanation, tt.wantText)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %d, want %d", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no wrapper", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanMarkdownWrapper(tt.input); got != tt.want {
				t.Errorf("cleanMarkdownWrapper() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewGeminiClient(t *testing.T) {
	if _, err := NewGeminiClient(Config{}); err == nil {
		t.Error("NewGeminiClient() expected error for missing API key")
	}

	client, err := NewGeminiClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}

	gc, ok := client.(*geminiClient)
	if !ok {
		t.Fatalf("NewGeminiClient() returned %T, want *geminiClient", client)
	}
	if gc.model != "gemini-1.5-flash" {
		t.Errorf("Default model = %q, want gemini-1.5-flash", gc.model)
	}
	if gc.temperature != 0.3 {
		t.Errorf("Default temperature = %v, want 0.3", gc.temperature)
	}
	if gc.maxTokens != 300 {
		t.Errorf("Default maxTokens = %d, want 300", gc.maxTokens)
	}
}
