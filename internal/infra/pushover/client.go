package pushover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"home-voice/config"
	"home-voice/internal/application"
)

const defaultBaseURL = "https://api.pushover.net/1"

// pushover rejects messages longer than this many characters.
const maxMessageLen = 1024

type Client struct {
	token      string
	userKey    string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.PushoverConfig) *Client {
	return NewClientWithURL(cfg, defaultBaseURL)
}

func NewClientWithURL(cfg config.PushoverConfig, baseURL string) *Client {
	return &Client{
		token:      cfg.Token,
		userKey:    cfg.UserKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify pushes message to the configured user. Without credentials it
// does nothing.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	if r := []rune(message); len(r) > maxMessageLen {
		message = string(r[:maxMessageLen-3]) + "..."
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", "Home Voice")
	if id := application.RequestID(ctx); id != "" {
		data.Set("url_title", "request "+id)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/messages.json",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}

	return nil
}
