package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"home-voice/internal/domain"
)

// Automation is a named, replayable list of commands. Names are unique per
// user among active automations.
type Automation struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	Actions       []domain.Command
	Active        bool
	CreatedAt     time.Time
	LastTriggered *time.Time
}

const automationColumns = `id, user_id, name, description, actions, is_active, created_at, last_triggered`

type AutomationRepository struct {
	db *DB
}

func NewAutomationRepository(db *DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

// Create stores a new automation, assigning ID and CreatedAt.
func (r *AutomationRepository) Create(ctx context.Context, a *Automation) error {
	if len(a.Actions) == 0 {
		return ErrInvalidActions
	}
	for _, cmd := range a.Actions {
		if cmd.Action == "" {
			return ErrInvalidActions
		}
	}

	actionsJSON, err := json.Marshal(a.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	a.Active = true

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automations (id, user_id, name, description, actions, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		a.ID, a.UserID, a.Name, a.Description, string(actionsJSON), formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAutomationExists
		}
		return fmt.Errorf("inserting automation: %w", err)
	}
	return nil
}

// GetByName finds the active automation owned by userID.
func (r *AutomationRepository) GetByName(ctx context.Context, name, userID string) (*Automation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE name = ? AND user_id = ? AND is_active = 1`,
		name, userID)

	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAutomationNotFound
		}
		return nil, fmt.Errorf("querying automation by name: %w", err)
	}
	return a, nil
}

// List returns the user's active automations, newest first.
func (r *AutomationRepository) List(ctx context.Context, userID string) ([]Automation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM automations
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying automations: %w", err)
	}
	defer rows.Close()

	var out []Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning automation: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automations: %w", err)
	}
	return out, nil
}

func (r *AutomationRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, "UPDATE automations SET last_triggered = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating automation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAutomationNotFound
	}
	return nil
}

// Delete deactivates the named automation.
func (r *AutomationRepository) Delete(ctx context.Context, name, userID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE automations SET is_active = 0 WHERE name = ? AND user_id = ? AND is_active = 1",
		name, userID)
	if err != nil {
		return fmt.Errorf("deleting automation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrAutomationNotFound
	}
	return nil
}

func scanAutomation(s scanner) (*Automation, error) {
	var (
		a             Automation
		actions       string
		active        int
		created       string
		lastTriggered sql.NullString
	)

	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &actions, &active, &created, &lastTriggered); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actions), &a.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}
	a.Active = active == 1

	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if lastTriggered.Valid {
		t, err := parseTime(lastTriggered.String)
		if err != nil {
			return nil, err
		}
		a.LastTriggered = &t
	}
	return &a, nil
}
