package anthropic

import (
	"context"
	"errors"
	"net/http"
	"time"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra"
	"home-voice/internal/metrics"
)

var ErrEmptyResponse = errors.New("anthropic: empty response")

type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Parse asks Claude for the command batch matching text.
func (c *ClaudeClient) Parse(ctx context.Context, text string, catalog application.IntentContext) (domain.CommandBatch, error) {
	batch, err := c.parse(ctx, text, catalog)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RecordIntent("anthropic", outcome)
	return batch, err
}

func (c *ClaudeClient) parse(ctx context.Context, text string, catalog application.IntentContext) (domain.CommandBatch, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: 1024,
		System:    application.SystemPrompt(catalog),
		Messages: []message{
			{Role: "user", Content: text},
		},
	}

	var result response
	err := infra.PostJSON(ctx, c.httpClient, c.retry, infra.JSONRequest{
		API:      "claude",
		Endpoint: c.baseURL + "/messages",
		Headers: map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": "2023-06-01",
		},
		Body: reqBody,
	}, &result)
	if err != nil {
		return domain.CommandBatch{}, err
	}

	if len(result.Content) == 0 {
		return domain.CommandBatch{}, ErrEmptyResponse
	}

	return application.ParseModelReply(result.Content[0].Text)
}
