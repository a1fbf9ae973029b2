package application

import (
	"fmt"
	"strings"

	"home-voice/internal/domain"
)

// Summarize renders dispatch results as the short text sent to notifiers,
// one line per command. Simple functions contribute their reply text.
func Summarize(results []domain.CommandResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		action := strings.ReplaceAll(r.Action, "_", " ")
		switch {
		case r.Failed():
			lines = append(lines, fmt.Sprintf("%s %s failed: %s", action, r.Target, r.Error))
		case r.Type == domain.KindSimpleFunction:
			if text := replyText(r.Response); text != "" {
				lines = append(lines, text)
			}
		default:
			lines = append(lines, fmt.Sprintf("%s %s: done", action, r.Target))
		}
	}
	return strings.Join(lines, "\n")
}

func replyText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return ""
}
