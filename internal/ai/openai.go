// Package ai wraps the hosted AI providers: OpenAI for moderation and flavor
// categorization, Gemini for embeddings.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/httputil"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// ModerationResult is the provider's verdict on a piece of text.
type ModerationResult struct {
	Flagged    bool
	Categories []string
	Score      float64
}

// Categorization is a suggested category plus free-form tags.
type Categorization struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	Backoff    time.Duration
	HTTPClient *http.Client
}

// OpenAI calls the moderation and chat completion endpoints.
type OpenAI struct {
	http  *httputil.Client
	model string
}

// NewOpenAI creates an OpenAI client. Requests are attempted up to three
// times on 429 and 5xx responses.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    baseURL,
			Timeout:    timeout,
			MaxRetries: 2,
			Backoff:    cfg.Backoff,
			HTTPClient: cfg.HTTPClient,
			Headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		}),
		model: model,
	}, nil
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Moderate runs text through the moderation endpoint.
func (c *OpenAI) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	var resp moderationResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/moderations", map[string]string{
		"model": "omni-moderation-latest",
		"input": text,
	}, &resp, nil); err != nil {
		return ModerationResult{}, fmt.Errorf("openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return ModerationResult{}, fmt.Errorf("openai moderation: empty result")
	}

	r := resp.Results[0]
	out := ModerationResult{Flagged: r.Flagged}
	for name, hit := range r.Categories {
		if hit {
			out.Categories = append(out.Categories, name)
		}
	}
	sort.Strings(out.Categories)
	for _, score := range r.CategoryScores {
		if score > out.Score {
			out.Score = score
		}
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Categorize asks the model to place a flavor in one of categories. The
// returned category is lower-cased but not validated against categories.
func (c *OpenAI) Categorize(ctx context.Context, name, description string, categories []string) (Categorization, error) {
	system := "You classify ice cream flavors. Reply with a JSON object " +
		`{"category": string, "tags": [string]}. ` +
		"category must be exactly one of: " + strings.Join(categories, ", ") +
		". tags are up to five short lowercase descriptors."
	user := "Flavor: " + name
	if description != "" {
		user += "\nDescription: " + description
	}

	var resp chatResponse
	err := c.http.Do(ctx, http.MethodPost, "/v1/chat/completions", chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}, &resp, nil)
	if err != nil {
		return Categorization{}, fmt.Errorf("openai categorize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Categorization{}, fmt.Errorf("openai categorize: no choices returned")
	}

	var out Categorization
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return Categorization{}, fmt.Errorf("openai categorize: decode content: %w", err)
	}
	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	if len(out.Tags) > 5 {
		out.Tags = out.Tags[:5]
	}
	for i, tag := range out.Tags {
		out.Tags[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	return out, nil
}
