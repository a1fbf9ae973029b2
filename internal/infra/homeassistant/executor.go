package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"home-voice/config"
	"home-voice/internal/infra"
	"home-voice/internal/metrics"
)

// Executor issues authenticated calls to the Home Assistant REST API with
// bounded exponential backoff.
type Executor struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      infra.RetryConfig
	logger     *slog.Logger
}

type ExecutorOption func(*Executor)

// WithSleep replaces the wait between attempts, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.retry.Sleep = fn }
}

func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = c }
}

func NewExecutor(cfg config.HomeAssistantConfig, logger *slog.Logger, opts ...ExecutorOption) (*Executor, error) {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return nil, ErrMissingCredentials
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	e := &Executor{
		// Remove trailing slash if present
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		retry: infra.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: delay,
			Multiplier:   2.0,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Response is a successful (2xx/3xx) reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the body. An empty body decodes to an empty object.
func (r *Response) Decode() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Executor) BaseURL() string {
	return e.baseURL
}

func (e *Executor) URL(path string) string {
	return e.baseURL + path
}

func (e *Executor) Get(ctx context.Context, path string) (*Response, error) {
	return e.Do(ctx, http.MethodGet, path, nil)
}

func (e *Executor) Post(ctx context.Context, path string, payload any) (*Response, error) {
	return e.Do(ctx, http.MethodPost, path, payload)
}

// Do sends one request, retrying timeouts, connection failures and 5xx
// responses. A 4xx response is returned as *StatusError after one attempt.
// Exhausted retries yield a *RequestError chained to the last failure.
func (e *Executor) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
	}

	url := e.URL(path)
	attempts := 0
	var result *Response

	retryErr := infra.WithRetry(ctx, e.retry, func() error {
		attempts++

		resp, err := e.send(ctx, method, url, body)
		if err == nil {
			metrics.RecordAttempt(method, metrics.OutcomeSuccess)
			result = resp
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			metrics.RecordAttempt(method, metrics.OutcomeError)
			e.logger.Error("client error from home assistant",
				"status", statusErr.StatusCode,
				"url", url,
			)
			return infra.Permanent(err)
		}

		metrics.RecordAttempt(method, metrics.OutcomeRetry)
		e.logger.Warn("home assistant request attempt failed",
			"attempt", attempts,
			"max_attempts", e.retry.MaxAttempts,
			"method", method,
			"url", url,
			"error", err,
		)
		return err
	})

	if retryErr == nil {
		return result, nil
	}

	var statusErr *StatusError
	if errors.As(retryErr, &statusErr) && statusErr.StatusCode < 500 {
		return nil, retryErr
	}

	reqErr := &RequestError{BaseURL: e.baseURL, Attempts: attempts, Err: retryErr}
	e.logger.Error("home assistant request failed", "error", reqErr)
	return nil, reqErr
}

func (e *Executor) send(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
