package simplefn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"home-voice/internal/application"
	"home-voice/internal/infra/store"
)

// EventStore is the calendar persistence used by the calendar functions.
type EventStore interface {
	Create(ctx context.Context, e *store.Event) error
	Upcoming(ctx context.Context, q store.EventQuery) ([]store.Event, error)
	Search(ctx context.Context, term string, eventType store.EventType) ([]store.Event, error)
	Complete(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

const (
	defaultLookaheadDays = 7
	createdLayout        = "January 02, 2006 at 03:04 PM"
	longLayout           = "January 02 at 03:04 PM"
	shortLayout          = "Jan 02 at 03:04 PM"
)

var repeatPatterns = map[string]string{
	"none":    "none",
	"once":    "none",
	"never":   "none",
	"no":      "none",
	"single":  "none",
	"daily":   "daily",
	"weekly":  "weekly",
	"monthly": "monthly",
	"yearly":  "yearly",
}

func (r *Registry) registerCalendar() {
	r.register(Function{
		Name:    "add_event",
		Handler: r.addEvent,
		Context: application.FunctionContext{NeedsUser: true},
	})
	r.register(Function{Name: "get_events", Handler: r.getEvents})
	r.register(Function{Name: "manage_event", Handler: r.manageEvent})
	r.register(Function{Name: "get_all_upcoming_events", Handler: r.allUpcomingEvents})
	r.register(Function{Name: "list_calendar", Handler: r.listCalendar})
}

// NormalizeRepeat maps free-form repeat words onto the stored patterns.
// Unknown values fall back to "none".
func NormalizeRepeat(repeat string) (string, bool) {
	if repeat == "" {
		return "none", true
	}
	p, ok := repeatPatterns[strings.ToLower(strings.TrimSpace(repeat))]
	if !ok {
		return "none", false
	}
	return p, true
}

func (r *Registry) addEvent(ctx context.Context, args map[string]any) (any, error) {
	eventType, err := stringArg(args, "event_type")
	if err != nil {
		return nil, err
	}
	title, err := stringArg(args, "title")
	if err != nil {
		return nil, err
	}
	when, err := stringArg(args, "when")
	if err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	repeatArg, err := stringArg(args, "repeat")
	if err != nil {
		return nil, err
	}
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}

	repeat, ok := NormalizeRepeat(repeatArg)
	if !ok {
		r.logger.Warn("invalid repeat pattern, using none", "repeat", repeatArg)
	}

	kind := store.EventType(strings.ToLower(eventType))
	if !kind.Valid() {
		return fmt.Sprintf("Failed to add %s: event type must be reminder, appointment or alarm", eventType), nil
	}
	if title == "" {
		return "Please specify a title.", nil
	}

	due, ok := ParseWhen(when, r.now())
	if !ok {
		return "Could not parse datetime: " + when, nil
	}

	event := &store.Event{
		UserID:        userID,
		Type:          kind,
		Title:         title,
		Description:   description,
		Due:           due,
		Repeat:        repeat,
		NotifyMinutes: kind.DefaultNotificationMinutes(),
	}
	if err := r.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("adding %s: %w", kind, err)
	}

	msg := fmt.Sprintf("%s '%s' set for %s", capitalize(string(kind)), title, due.Format(createdLayout))
	if repeat != "none" {
		msg += fmt.Sprintf(" (repeats %s)", repeat)
	}
	r.logger.Info("calendar event added", "type", kind, "title", title, "due", due)
	return msg, nil
}

func (r *Registry) upcoming(ctx context.Context, days int, eventType store.EventType) ([]store.Event, error) {
	now := r.now()
	events, err := r.events.Upcoming(ctx, store.EventQuery{
		From: now,
		To:   now.AddDate(0, 0, days),
		Type: eventType,
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

func (r *Registry) getEvents(ctx context.Context, args map[string]any) (any, error) {
	days, err := intArg(args, "days", defaultLookaheadDays)
	if err != nil {
		return nil, err
	}
	typeArg, err := stringArg(args, "event_type")
	if err != nil {
		return nil, err
	}
	eventType := store.EventType(strings.ToLower(typeArg))

	events, err := r.upcoming(ctx, days, eventType)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		label := "events"
		if eventType != "" {
			label = string(eventType) + "s"
		}
		return fmt.Sprintf("No %s scheduled for the next %d days.", label, days), nil
	}

	var sb strings.Builder
	if eventType == "" {
		fmt.Fprintf(&sb, "Upcoming events (next %d days):\n", days)
		for _, kind := range []store.EventType{store.EventReminder, store.EventAppointment, store.EventAlarm} {
			group := filterEvents(events, kind)
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "\n%ss:\n", capitalize(string(kind)))
			for _, e := range group {
				sb.WriteString("- " + r.describe(e, longLayout))
				if e.Description != "" {
					sb.WriteString("\n  Details: " + e.Description)
				}
				sb.WriteString("\n")
			}
		}
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "Upcoming %ss (next %d days):\n", eventType, days)
	for _, e := range events {
		sb.WriteString("\n- " + r.describe(e, longLayout))
		if e.Description != "" {
			sb.WriteString("\n  Details: " + e.Description)
		}
	}
	return sb.String(), nil
}

func (r *Registry) manageEvent(ctx context.Context, args map[string]any) (any, error) {
	operation, err := stringArg(args, "operation")
	if err != nil {
		return nil, err
	}
	term, err := stringArg(args, "search_term")
	if err != nil {
		return nil, err
	}
	operation = strings.ToLower(operation)

	// only reminders can be completed
	var kind store.EventType
	if operation == "complete" {
		kind = store.EventReminder
	}
	events, err := r.events.Search(ctx, term, kind)
	if err != nil {
		return nil, fmt.Errorf("searching events: %w", err)
	}

	if len(events) == 0 {
		return fmt.Sprintf("No event found matching '%s'.", term), nil
	}
	if len(events) > 1 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Multiple events found for '%s':\n", term)
		for _, e := range events {
			fmt.Fprintf(&sb, "\n- ID %d: %s (%s) - %s", e.ID, e.Title, e.Type, r.local(e.Due).Format(longLayout))
		}
		sb.WriteString("\n\nPlease be more specific or use the ID.")
		return sb.String(), nil
	}

	event := events[0]
	switch operation {
	case "complete":
		if err := r.events.Complete(ctx, event.ID); err != nil {
			return nil, fmt.Errorf("completing event %d: %w", event.ID, err)
		}
		return fmt.Sprintf("Marked '%s' as completed.", event.Title), nil
	case "delete":
		if err := r.events.Delete(ctx, event.ID); err != nil {
			return nil, fmt.Errorf("deleting event %d: %w", event.ID, err)
		}
		return fmt.Sprintf("Deleted %s '%s'.", event.Type, event.Title), nil
	default:
		return fmt.Sprintf("Unknown operation '%s'. Use 'complete' or 'delete'.", operation), nil
	}
}

func (r *Registry) allUpcomingEvents(ctx context.Context, args map[string]any) (any, error) {
	days, err := intArg(args, "days", defaultLookaheadDays)
	if err != nil {
		return nil, err
	}
	events, err := r.upcoming(ctx, days, "")
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return fmt.Sprintf("No events scheduled for the next %d days.", days), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Upcoming events (next %d days):\n", days)
	for _, e := range events {
		fmt.Fprintf(&sb, "\n- [%s] %s", strings.ToUpper(string(e.Type)), r.describe(e, longLayout))
	}
	return sb.String(), nil
}

func (r *Registry) listCalendar(ctx context.Context, args map[string]any) (any, error) {
	days, err := intArg(args, "days", defaultLookaheadDays)
	if err != nil {
		return nil, err
	}
	events, err := r.upcoming(ctx, days, "")
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return fmt.Sprintf("Calendar is empty for the next %d days.", days), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CALENDAR (next %d days):\n", days)

	section := func(kind store.EventType, showRepeat, showDetails bool) {
		group := filterEvents(events, kind)
		if len(group) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n%sS (%d):\n", strings.ToUpper(string(kind)), len(group))
		for _, e := range group {
			fmt.Fprintf(&sb, "  - %s - %s", e.Title, r.local(e.Due).Format(shortLayout))
			if showRepeat && e.Repeat != "none" {
				fmt.Fprintf(&sb, " [repeats %s]", e.Repeat)
			}
			if showDetails && e.Description != "" {
				sb.WriteString("\n    Details: " + e.Description)
			}
			sb.WriteString("\n")
		}
	}
	section(store.EventReminder, true, true)
	section(store.EventAlarm, true, false)
	section(store.EventAppointment, false, true)

	fmt.Fprintf(&sb, "\nTotal: %d event(s)", len(events))
	return sb.String(), nil
}

// describe renders "title - <due>" plus the repeat suffix.
func (r *Registry) describe(e store.Event, layout string) string {
	s := e.Title + " - " + r.local(e.Due).Format(layout)
	if e.Repeat != "none" {
		s += " (repeats " + e.Repeat + ")"
	}
	return s
}

func (r *Registry) local(t time.Time) time.Time {
	return t.In(r.now().Location())
}

func filterEvents(events []store.Event, kind store.EventType) []store.Event {
	var out []store.Event
	for _, e := range events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
