package simplefn

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"home-voice/config"
)

const (
	searchesDisabled     = "Internet searches are currently disabled in system settings."
	wikipediaUnavailable = "Wikipedia information not available at the moment, please try later."

	summaryParagraphs  = 3
	summaryMaxRunes    = 500
	compoundParagraphs = 2
	compoundMaxRunes   = 250
	compoundMaxTopics  = 3
	minParagraphRunes  = 20
)

var compoundSplitter = regexp.MustCompile(`(?i)\s+(?:and|or|vs|versus|with|plus)\s+`)

// skipped while extracting paragraphs
var strippedElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
	atom.Table:  true,
	atom.Figure: true,
}

type pageSummary struct {
	Title string `json:"title"`
}

func (r *Registry) wikipediaSummary(ctx context.Context, args map[string]any) (any, error) {
	if !r.cfg.AllowInternetSearches {
		return searchesDisabled, nil
	}
	topic, err := stringArg(args, "topic")
	if err != nil {
		return nil, err
	}
	if topic == "" {
		return "Please specify a topic.", nil
	}

	title, ok := r.canonicalTitle(ctx, topic)
	if !ok {
		if combined := r.compoundSummary(ctx, topic); combined != "" {
			return combined, nil
		}
		return "No Wikipedia page found for: " + topic, nil
	}

	text, err := r.pageParagraphs(ctx, title, summaryParagraphs, summaryMaxRunes)
	if err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			if combined := r.compoundSummary(ctx, topic); combined != "" {
				return combined, nil
			}
			return "No Wikipedia page found for: " + topic, nil
		}
		r.logger.Warn("wikipedia fetch failed", "topic", topic, "error", err)
		return wikipediaUnavailable, nil
	}
	if text == "" {
		return "No summary found for: " + topic, nil
	}
	return text, nil
}

// canonicalTitle resolves topic through the summary endpoint.
func (r *Registry) canonicalTitle(ctx context.Context, topic string) (string, bool) {
	slug := strings.Join(strings.Fields(topic), "_")

	var summary pageSummary
	endpoint := r.site(config.SiteWikipedia) + "/page/summary/" + url.PathEscape(slug)
	if err := r.getJSON(ctx, endpoint, nil, &summary); err != nil {
		r.logger.Warn("wikipedia summary lookup failed", "topic", topic, "error", err)
		return "", false
	}
	if summary.Title == "" {
		return "", false
	}
	return strings.ReplaceAll(summary.Title, " ", "_"), true
}

func (r *Registry) pageParagraphs(ctx context.Context, title string, limit, maxRunes int) (string, error) {
	body, err := r.get(ctx, r.site(config.SiteWikimedia)+"/"+url.PathEscape(title)+"/html", nil)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var parts []string
	for _, p := range findParagraphs(doc, limit) {
		fragments := textFragments(p)
		if len([]rune(strings.Join(fragments, ""))) > minParagraphRunes {
			parts = append(parts, strings.Join(fragments, " "))
		}
	}
	return truncateRunes(strings.Join(parts, " "), maxRunes), nil
}

// compoundSummary splits "a and b" style queries and summarises each part.
// It returns "" when the topic is not compound or nothing was found.
func (r *Registry) compoundSummary(ctx context.Context, topic string) string {
	var topics []string
	for _, t := range compoundSplitter.Split(topic, -1) {
		if t = strings.TrimSpace(t); len([]rune(t)) > 2 {
			topics = append(topics, t)
		}
	}
	if len(topics) > compoundMaxTopics {
		topics = topics[:compoundMaxTopics]
	}
	if len(topics) < 2 {
		return ""
	}

	r.logger.Info("compound wikipedia query", "topics", topics)

	caser := cases.Title(language.English)
	var summaries []string
	for _, sub := range topics {
		title, ok := r.canonicalTitle(ctx, sub)
		if !ok {
			continue
		}
		text, err := r.pageParagraphs(ctx, title, compoundParagraphs, compoundMaxRunes)
		if err != nil {
			r.logger.Warn("wikipedia fetch failed", "topic", sub, "error", err)
			continue
		}
		if text != "" {
			summaries = append(summaries, caser.String(sub)+": "+text)
		}
	}
	return strings.Join(summaries, "\n\n")
}

func findParagraphs(root *html.Node, limit int) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			if strippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.P {
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func textFragments(n *html.Node) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
