package simplefn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra/simplefn"
	"home-voice/internal/infra/store"
)

var movieActions = []any{
	map[string]any{"action": "turn_off", "target": "kitchen light"},
	map[string]any{"action": "turn_on", "target": "tv", "data": map[string]any{"source": "hdmi1"}},
}

func newAutomations(t *testing.T) *simplefn.Registry {
	t.Helper()
	repo := store.NewAutomationRepository(openStore(t))
	return newRegistry(t, baseConfig(), simplefn.WithAutomationStore(repo))
}

func createMovie(t *testing.T, r *simplefn.Registry) {
	t.Helper()
	got := call(t, r, "create_automation", map[string]any{
		"name":                   "movie night",
		"description":            "dim and start the tv",
		"actions":                movieActions,
		"save_previous_commands": false,
		"user_id":                "u1",
	})
	require.Equal(t, "Automation 'movie night' created successfully with 2 action(s).", got)
}

func TestCreateAutomation(t *testing.T) {
	r := newAutomations(t)
	createMovie(t, r)

	assert.Equal(t, "Automation named 'movie night' already exists. Delete it first or use a different name.",
		call(t, r, "create_automation", map[string]any{"name": "movie night", "actions": movieActions, "save_previous_commands": false, "user_id": "u1"}))

	// same name for another user is fine
	assert.Equal(t, "Automation 'movie night' created successfully with 2 action(s).",
		call(t, r, "create_automation", map[string]any{"name": "movie night", "actions": movieActions, "save_previous_commands": false, "user_id": "u2"}))
}

func TestCreateAutomation_FromCurrentRequest(t *testing.T) {
	r := newAutomations(t)

	got := call(t, r, "create_automation", map[string]any{
		"name": "coffee",
		"current_request_commands": []map[string]any{
			{"action": "turn_on", "target": "coffee maker"},
			{"action": "create_automation", "target": "virtual.automation", "data": map[string]any{"name": "coffee"}},
		},
	})
	assert.Equal(t, "Automation 'coffee' created successfully with 1 action(s).", got)

	got = call(t, r, "create_automation", map[string]any{
		"name":                     "lonely",
		"current_request_commands": []map[string]any{{"action": "create_automation"}},
	})
	assert.Equal(t, "No commands to save - create_automation was the only command in the request.", got)
}

func TestCreateAutomation_Rejections(t *testing.T) {
	r := newAutomations(t)

	assert.Equal(t, "Please specify a name for the automation.",
		call(t, r, "create_automation", map[string]any{"actions": movieActions}))
	assert.Equal(t,
		"No actions provided. Either specify actions or use save_previous_commands with other commands in the request.",
		call(t, r, "create_automation", map[string]any{"name": "empty"}))
	assert.Equal(t, "Each action must be a dictionary with at least an 'action' field",
		call(t, r, "create_automation", map[string]any{"name": "bad", "actions": []any{"turn_on"}}))
	assert.Equal(t, "Each action must be a dictionary with at least an 'action' field",
		call(t, r, "create_automation", map[string]any{"name": "bad", "actions": []any{map[string]any{"target": "tv"}}}))
}

func TestTriggerAutomation(t *testing.T) {
	r := newAutomations(t)
	createMovie(t, r)

	assert.Equal(t, "Automation 'ghost' not found.",
		call(t, r, "trigger_automation", map[string]any{"name": "ghost", "user_id": "u1"}))
	assert.Equal(t, "Cannot execute automation: Home Assistant client not available.",
		call(t, r, "trigger_automation", map[string]any{"name": "movie night", "user_id": "u1"}))

	sender := &recordingSender{}
	r.BindSender(sender)

	assert.Equal(t, "Automation 'movie night' executed successfully (2 action(s)).",
		call(t, r, "trigger_automation", map[string]any{"name": "movie night", "user_id": "u1"}))

	require.Len(t, sender.batches, 1)
	batch := sender.batches[0]
	assert.Equal(t, domain.CommandSchemaVersion, batch.Version)
	require.Len(t, batch.Commands, 2)
	assert.Equal(t, domain.Command{Action: "turn_off", Target: "kitchen light"}, batch.Commands[0])
	assert.Equal(t, map[string]any{"source": "hdmi1"}, batch.Commands[1].Data)
	assert.Equal(t, application.SendOptions{Debug: true, UserID: "u1"}, sender.opts[0])

	// another user's automation is invisible
	assert.Equal(t, "Automation 'movie night' not found.",
		call(t, r, "trigger_automation", map[string]any{"name": "movie night", "user_id": "u9"}))

	assert.Contains(t, call(t, r, "list_automations", map[string]any{"user_id": "u1"}),
		"Last used: 2026-03-04 10:30")
}

func TestTriggerAutomation_Outcomes(t *testing.T) {
	r := newAutomations(t)
	createMovie(t, r)
	args := map[string]any{"name": "movie night", "user_id": "u1"}

	partial := &recordingSender{reply: func(b domain.CommandBatch) []domain.CommandResult {
		return []domain.CommandResult{
			domain.SucceededResult("kitchen light", "turn_off"),
			domain.FailedResult("tv", "turn_on", "Unknown target: 'tv'"),
		}
	}}
	r.BindSender(partial)
	assert.Equal(t, "Automation 'movie night' partially executed (1/2 actions succeeded).",
		call(t, r, "trigger_automation", args))

	failed := &recordingSender{reply: func(b domain.CommandBatch) []domain.CommandResult {
		return []domain.CommandResult{
			domain.FailedResult("kitchen light", "turn_off", "boom"),
			domain.FailedResult("tv", "turn_on", "boom"),
		}
	}}
	r.BindSender(failed)
	assert.Equal(t, "Automation 'movie night' failed to execute.", call(t, r, "trigger_automation", args))

	r.BindSender(&recordingSender{err: errors.New("connection refused")})
	assert.Equal(t, "Error executing automation 'movie night': connection refused",
		call(t, r, "trigger_automation", args))
}

// loopSender re-enters trigger_automation the way a stored trigger command would.
type loopSender struct {
	r     *simplefn.Registry
	inner string
}

func (s *loopSender) SendCommands(ctx context.Context, batch domain.CommandBatch, opts application.SendOptions) ([]domain.CommandResult, error) {
	out, err := s.r.Call(ctx, "trigger_automation", map[string]any{"name": "loop", "user_id": opts.UserID})
	if err != nil {
		return nil, err
	}
	s.inner, _ = out.(string)
	return []domain.CommandResult{domain.SucceededResult("virtual.automation", "trigger_automation")}, nil
}

func TestTriggerAutomation_RefusesRecursion(t *testing.T) {
	r := newAutomations(t)
	require.Equal(t, "Automation 'loop' created successfully with 1 action(s).",
		call(t, r, "create_automation", map[string]any{
			"name":                   "loop",
			"save_previous_commands": false,
			"actions": []any{map[string]any{
				"action": "trigger_automation",
				"target": "virtual.automation",
				"data":   map[string]any{"name": "loop"},
			}},
		}))

	sender := &loopSender{r: r}
	r.BindSender(sender)

	assert.Equal(t, "Automation 'loop' executed successfully (1 action(s)).",
		call(t, r, "trigger_automation", map[string]any{"name": "loop"}))
	assert.Equal(t, "Automation 'loop' cannot trigger itself.", sender.inner)
}

func TestListAndDeleteAutomations(t *testing.T) {
	r := newAutomations(t)

	assert.Equal(t, "No automations found.", call(t, r, "list_automations", map[string]any{"user_id": "u1"}))

	createMovie(t, r)
	assert.Equal(t, "Your automations:\n\n- movie night: dim and start the tv (2 action(s))",
		call(t, r, "list_automations", map[string]any{"user_id": "u1"}))

	assert.Equal(t, "Automation 'movie night' not found.",
		call(t, r, "delete_automation", map[string]any{"name": "movie night", "user_id": "u2"}))
	assert.Equal(t, "Automation 'movie night' deleted successfully.",
		call(t, r, "delete_automation", map[string]any{"name": "movie night", "user_id": "u1"}))
	assert.Equal(t, "No automations found.", call(t, r, "list_automations", map[string]any{"user_id": "u1"}))
}
