package simplefn

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra/store"
)

// AutomationStore is the persistence used by the automation functions.
type AutomationStore interface {
	Create(ctx context.Context, a *store.Automation) error
	GetByName(ctx context.Context, name, userID string) (*store.Automation, error)
	List(ctx context.Context, userID string) ([]store.Automation, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, name, userID string) error
}

const lastUsedLayout = "2006-01-02 15:04"

type runningKey struct{}

func (r *Registry) registerAutomations() {
	user := application.FunctionContext{NeedsUser: true}
	r.register(Function{
		Name:    "create_automation",
		Handler: r.createAutomation,
		Context: application.FunctionContext{NeedsUser: true, NeedsBatch: true},
	})
	r.register(Function{Name: "trigger_automation", Handler: r.triggerAutomation, Context: user})
	r.register(Function{Name: "list_automations", Handler: r.listAutomations, Context: user})
	r.register(Function{Name: "delete_automation", Handler: r.deleteAutomation, Context: user})
}

func (r *Registry) createAutomation(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}
	savePrevious, err := boolArg(args, "save_previous_commands", true)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return "Please specify a name for the automation.", nil
	}

	var raw []map[string]any
	current, err := mapListArg(args, "current_request_commands")
	if err != nil {
		return nil, err
	}
	if savePrevious && len(current) > 0 {
		for _, cmd := range current {
			if cmd["action"] != "create_automation" {
				raw = append(raw, cmd)
			}
		}
		if len(raw) == 0 {
			return "No commands to save - create_automation was the only command in the request.", nil
		}
	} else {
		raw, err = mapListArg(args, "actions")
		if err != nil {
			return "Each action must be a dictionary with at least an 'action' field", nil
		}
	}
	if len(raw) == 0 {
		return "No actions provided. Either specify actions or use save_previous_commands with other commands in the request.", nil
	}

	actions := make([]domain.Command, 0, len(raw))
	for _, m := range raw {
		cmd, err := domain.CommandFromMap(m)
		if err != nil {
			return "Each action must be a dictionary with at least an 'action' field", nil
		}
		actions = append(actions, cmd)
	}

	a := &store.Automation{UserID: userID, Name: name, Description: description, Actions: actions}
	switch err := r.automation.Create(ctx, a); {
	case errors.Is(err, store.ErrAutomationExists):
		return fmt.Sprintf("Automation named '%s' already exists. Delete it first or use a different name.", name), nil
	case err != nil:
		return nil, fmt.Errorf("creating automation: %w", err)
	}

	r.logger.Info("automation created", "name", name, "actions", len(actions))
	return fmt.Sprintf("Automation '%s' created successfully with %d action(s).", name, len(actions)), nil
}

func (r *Registry) triggerAutomation(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}

	a, err := r.automation.GetByName(ctx, name, userID)
	if errors.Is(err, store.ErrAutomationNotFound) {
		return fmt.Sprintf("Automation '%s' not found.", name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading automation: %w", err)
	}

	sender := r.commandSender()
	if sender == nil {
		return "Cannot execute automation: Home Assistant client not available.", nil
	}
	if len(a.Actions) == 0 {
		return fmt.Sprintf("Automation '%s' has no actions to execute.", name), nil
	}

	running, _ := ctx.Value(runningKey{}).([]string)
	if slices.Contains(running, a.ID) {
		return fmt.Sprintf("Automation '%s' cannot trigger itself.", name), nil
	}
	ctx = context.WithValue(ctx, runningKey{}, append(slices.Clone(running), a.ID))

	batch := domain.CommandBatch{Version: domain.CommandSchemaVersion, Commands: a.Actions}
	results, err := sender.SendCommands(ctx, batch, application.SendOptions{Debug: true, UserID: userID})
	if err != nil {
		r.logger.Error("automation failed", "name", name, "error", err)
		return fmt.Sprintf("Error executing automation '%s': %v", name, err), nil
	}

	if err := r.automation.MarkTriggered(ctx, a.ID, r.now()); err != nil {
		r.logger.Warn("failed to update automation", "name", name, "error", err)
	}

	succeeded, total := domain.CountSucceeded(results), len(a.Actions)
	switch {
	case succeeded == total:
		return fmt.Sprintf("Automation '%s' executed successfully (%d action(s)).", name, total), nil
	case succeeded > 0:
		return fmt.Sprintf("Automation '%s' partially executed (%d/%d actions succeeded).", name, succeeded, total), nil
	default:
		return fmt.Sprintf("Automation '%s' failed to execute.", name), nil
	}
}

func (r *Registry) listAutomations(ctx context.Context, args map[string]any) (any, error) {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}

	automations, err := r.automation.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing automations: %w", err)
	}
	if len(automations) == 0 {
		return "No automations found.", nil
	}

	var sb strings.Builder
	sb.WriteString("Your automations:\n")
	for _, a := range automations {
		sb.WriteString("\n- " + a.Name)
		if a.Description != "" {
			sb.WriteString(": " + a.Description)
		}
		fmt.Fprintf(&sb, " (%d action(s))", len(a.Actions))
		if a.LastTriggered != nil {
			sb.WriteString("\n  Last used: " + r.local(*a.LastTriggered).Format(lastUsedLayout))
		}
	}
	return sb.String(), nil
}

func (r *Registry) deleteAutomation(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}

	switch err := r.automation.Delete(ctx, name, userID); {
	case errors.Is(err, store.ErrAutomationNotFound):
		return fmt.Sprintf("Automation '%s' not found.", name), nil
	case err != nil:
		return nil, fmt.Errorf("deleting automation: %w", err)
	}

	r.logger.Info("automation deleted", "name", name)
	return fmt.Sprintf("Automation '%s' deleted successfully.", name), nil
}
