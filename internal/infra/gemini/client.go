package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra"
	"home-voice/internal/metrics"
)

var ErrEmptyResponse = errors.New("gemini: empty response")

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClient(apiKey, model string) *Client {
	return NewClientWithURL(apiKey, model, "https://generativelanguage.googleapis.com/v1beta")
}

func NewClientWithURL(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Parse asks Gemini for the command batch matching text.
func (c *Client) Parse(ctx context.Context, text string, catalog application.IntentContext) (domain.CommandBatch, error) {
	batch, err := c.parse(ctx, text, catalog)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RecordIntent("gemini", outcome)
	return batch, err
}

func (c *Client) parse(ctx context.Context, text string, catalog application.IntentContext) (domain.CommandBatch, error) {
	reqBody := request{
		SystemInstruct: &content{
			Parts: []part{{Text: application.SystemPrompt(catalog)}},
		},
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: text}},
			},
		},
		GenerationConfig: generationConfig{
			MaxOutputTokens:  1024,
			Temperature:      0.1,
			ResponseMIMEType: "application/json",
		},
	}

	var result response
	err := infra.PostJSON(ctx, c.httpClient, c.retry, infra.JSONRequest{
		API:      "gemini",
		Endpoint: fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey)),
		Body:     reqBody,
	}, &result)
	if err != nil {
		return domain.CommandBatch{}, err
	}

	if result.Error != nil {
		return domain.CommandBatch{}, fmt.Errorf("gemini error: %s", result.Error.Message)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return domain.CommandBatch{}, ErrEmptyResponse
	}

	return application.ParseModelReply(result.Candidates[0].Content.Parts[0].Text)
}
