package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recountlabs/recount/internal/common"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// geminiClient implements the Client interface for the Google Gemini API.
type geminiClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}

	return &geminiClient{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

const systemPrompt = `You are a financial reconciliation assistant. Given an invoice, a bank transaction and a heuristic match score, explain in plain language why the pair was proposed as a match. Respond ONLY with JSON in the exact form {"explanation": "...", "confidence": 0-100}.`

// Generate sends the match context to Gemini and returns a validated
// explanation. Transport and server errors are retryable; a malformed or
// out-of-range response is not.
func (c *geminiClient) Generate(ctx context.Context, payload Context) (Explanation, error) {
	contextJSON, err := json.Marshal(payload)
	if err != nil {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("failed to marshal context: %w", err),
			Retryable: false,
		}
	}

	requestBody := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		},
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": string(contextJSON)}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":     c.temperature,
			"maxOutputTokens": c.maxTokens,
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiEndpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(jsonBody)))
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("request failed: %w", err),
			Retryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("failed to read response: %w", err),
			Retryable: true,
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Explanation{}, fmt.Errorf("%w: %s", common.ErrRateLimit, string(body))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth failures never heal on retry.
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("gemini API auth error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	case resp.StatusCode >= 500:
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("failed to parse response: %w", err),
			Retryable: false,
		}
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("no content in response"),
			Retryable: false,
		}
	}

	return parseExplanation(response.Candidates[0].Content.Parts[0].Text)
}

// parseExplanation extracts and validates the JSON payload from the model
// output. Missing fields and confidence outside 0-100 are malformed and
// therefore non-retryable.
func parseExplanation(content string) (Explanation, error) {
	var jsonResp struct {
		Explanation string `json:"explanation"`
		Confidence  *int   `json:"confidence"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("failed to parse JSON response: %w", err),
			Retryable: false,
		}
	}

	if jsonResp.Explanation == "" {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("no explanation found in response"),
			Retryable: false,
		}
	}

	if jsonResp.Confidence == nil || *jsonResp.Confidence < 0 || *jsonResp.Confidence > 100 {
		return Explanation{}, &common.RetryableError{
			Err:       fmt.Errorf("confidence missing or outside 0-100 in response"),
			Retryable: false,
		}
	}

	return Explanation{
		Explanation: jsonResp.Explanation,
		Confidence:  *jsonResp.Confidence,
	}, nil
}

// cleanMarkdownWrapper strips ```json fences some models wrap around output.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
