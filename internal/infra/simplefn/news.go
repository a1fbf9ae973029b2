package simplefn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"home-voice/config"
)

type gdeltResponse struct {
	Articles []struct {
		Title  string `json:"title"`
		URL    string `json:"url"`
		Domain string `json:"domain"`
	} `json:"articles"`
}

func (r *Registry) newsSummary(ctx context.Context, args map[string]any) (any, error) {
	if !r.cfg.AllowInternetSearches {
		return searchesDisabled, nil
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	if query == "" {
		return "Please specify a news topic.", nil
	}

	maxResults := r.cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}

	// ask for extras to make up for duplicates
	params := url.Values{
		"query":      {query},
		"mode":       {"artlist"},
		"maxrecords": {strconv.Itoa(maxResults * 2)},
		"format":     {"json"},
		"sort":       {"datedesc"},
	}

	body, err := r.get(ctx, r.site(config.SiteGDELT), params)
	if err != nil {
		r.logger.Warn("news request failed", "query", query, "error", err)
		return fmt.Sprintf("Error fetching news: Unable to connect to news service. %v", err), nil
	}

	// GDELT answers an empty body when nothing matches
	var resp gdeltResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Sprintf("Error processing news data: %v", err), nil
		}
	}

	seen := make(map[string]bool)
	var lines []string
	for _, a := range resp.Articles {
		if len(lines) >= maxResults {
			break
		}
		title := strings.TrimSpace(a.Title)
		key := strings.ToLower(title)
		if seen[key] {
			continue
		}
		seen[key] = true

		line := "• " + title
		if a.Domain != "" {
			line += " (" + a.Domain + ")"
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return "No recent news found for: " + query, nil
	}
	return fmt.Sprintf("Latest news about '%s':\n\n%s", query, strings.Join(lines, "\n\n")), nil
}
