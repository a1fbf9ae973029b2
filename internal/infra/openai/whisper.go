// Package openai transcribes uploaded audio with the Whisper API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"home-voice/config"
	"home-voice/internal/infra"
)

const defaultBaseURL = "https://api.openai.com/v1"

var ErrEmptyTranscript = errors.New("openai: empty transcript")

// WhisperClient implements application.SpeechToText.
type WhisperClient struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewWhisperClient(cfg config.OpenAIConfig) *WhisperClient {
	return NewWhisperClientWithURL(cfg, defaultBaseURL)
}

func NewWhisperClientWithURL(cfg config.OpenAIConfig, baseURL string) *WhisperClient {
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		apiKey:     cfg.APIKey,
		model:      model,
		language:   cfg.Language,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// form builds the multipart body once; every attempt resends the same bytes.
func (c *WhisperClient) form(audio []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("writing model field: %w", err)
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return nil, "", fmt.Errorf("writing language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	body, contentType, err := c.form(audio)
	if err != nil {
		return "", err
	}
	payload := body.Bytes()

	var result transcriptionResponse
	err = infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", bytes.NewReader(payload))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := fmt.Errorf("whisper API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
			if infra.IsClientError(resp.StatusCode) {
				return infra.Permanent(apiErr)
			}
			return apiErr
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
