package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventReminder    EventType = "reminder"
	EventAppointment EventType = "appointment"
	EventAlarm       EventType = "alarm"
)

// EventTypes lists the types in display order.
var EventTypes = []EventType{EventReminder, EventAppointment, EventAlarm}

func (t EventType) Valid() bool {
	switch t {
	case EventReminder, EventAppointment, EventAlarm:
		return true
	}
	return false
}

// DefaultNotificationMinutes is the lead time used when an event is created
// without one.
func (t EventType) DefaultNotificationMinutes() int {
	if t == EventAppointment {
		return 15
	}
	return 0
}

// Event is a calendar entry. An empty UserID marks an entry created by voice
// that is visible to every user.
type Event struct {
	ID            int64
	UserID        string
	Type          EventType
	Title         string
	Description   string
	Due           time.Time
	Repeat        string
	NotifyMinutes int
	Completed     bool
	CompletedAt   *time.Time
	Active        bool
	CreatedAt     time.Time
}

// EventQuery selects active events due in [From, To]. A non-empty UserID
// restricts results to that user's events plus the shared ones.
type EventQuery struct {
	From             time.Time
	To               time.Time
	Type             EventType
	IncludeCompleted bool
	UserID           string
}

const eventColumns = `id, user_id, event_type, title, description, due_at, repeat_pattern,
	notification_minutes_before, is_completed, completed_at, is_active, created_at`

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts the event and sets its ID.
func (r *EventRepository) Create(ctx context.Context, e *Event) error {
	if !e.Type.Valid() {
		return fmt.Errorf("invalid event type %q", e.Type)
	}
	if e.Repeat == "" {
		e.Repeat = "none"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Active = true

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (user_id, title, description, event_type, due_at,
			repeat_pattern, notification_minutes_before, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID,
		e.Title,
		e.Description,
		string(e.Type),
		formatTime(e.Due),
		e.Repeat,
		e.NotifyMinutes,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading event id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event by id: %w", err)
	}
	return e, nil
}

// Upcoming returns matching events ordered by due time.
func (r *EventRepository) Upcoming(ctx context.Context, q EventQuery) ([]Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + eventColumns + ` FROM events
		WHERE due_at >= ? AND due_at <= ? AND is_active = 1`)
	args := []any{formatTime(q.From), formatTime(q.To)}

	if !q.IncludeCompleted {
		sb.WriteString(" AND is_completed = 0")
	}
	if q.Type != "" {
		sb.WriteString(" AND event_type = ?")
		args = append(args, string(q.Type))
	}
	if q.UserID != "" {
		sb.WriteString(" AND (user_id = ? OR user_id = '')")
		args = append(args, q.UserID)
	}
	sb.WriteString(" ORDER BY due_at ASC, id ASC")

	return r.query(ctx, sb.String(), args...)
}

// Search matches term case-insensitively against title and description of
// active events.
func (r *EventRepository) Search(ctx context.Context, term string, eventType EventType) ([]Event, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE (lower(title) LIKE ? OR lower(description) LIKE ?) AND is_active = 1`
	args := []any{pattern, pattern}

	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(eventType))
	}
	query += " ORDER BY due_at ASC, id ASC"

	return r.query(ctx, query, args...)
}

func (r *EventRepository) Complete(ctx context.Context, id int64) error {
	return r.update(ctx, "UPDATE events SET is_completed = 1, completed_at = ? WHERE id = ?",
		formatTime(time.Now()), id)
}

// Delete is a soft delete.
func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	return r.update(ctx, "UPDATE events SET is_active = 0 WHERE id = ?", id)
}

func (r *EventRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*Event, error) {
	var (
		e                 Event
		eventType         string
		due, created      string
		completed, active int
		completedAt       sql.NullString
	)

	err := s.Scan(&e.ID, &e.UserID, &eventType, &e.Title, &e.Description, &due, &e.Repeat,
		&e.NotifyMinutes, &completed, &completedAt, &active, &created)
	if err != nil {
		return nil, err
	}

	e.Type = EventType(eventType)
	e.Completed = completed == 1
	e.Active = active == 1
	if e.Due, err = parseTime(due); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		e.CompletedAt = &t
	}
	return &e, nil
}

// Times are stored as UTC RFC 3339 so that text comparison orders them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
