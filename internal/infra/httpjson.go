package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed reply ends up in the error text.
const maxErrorBody = 4096

// JSONRequest describes one POST to a JSON API. API names the service in
// error messages ("claude API error 401: ...").
type JSONRequest struct {
	API      string
	Endpoint string
	Headers  map[string]string
	Body     any
}

// PostJSON sends req with retry and decodes a 200 reply into out. 4xx
// replies other than 429 are returned after a single attempt.
func PostJSON(ctx context.Context, client *http.Client, retry RetryConfig, req JSONRequest, out any) error {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	return WithRetry(ctx, retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return Permanent(fmt.Errorf("creating request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			apiErr := fmt.Errorf("%s API error %d: %s", req.API, resp.StatusCode, bytes.TrimSpace(body))
			if IsClientError(resp.StatusCode) {
				return Permanent(apiErr)
			}
			return apiErr
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
}
