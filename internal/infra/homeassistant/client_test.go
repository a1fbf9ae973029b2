package homeassistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra/homeassistant"
)

type fakeFunctions struct {
	actions map[string]string // action -> virtual entity
	needs   map[string]application.FunctionContext
	replies map[string]any
	errs    map[string]error

	calls  []string
	args   []map[string]any
	sender application.CommandSender
}

func (f *fakeFunctions) FindMatchingAction(command any) (string, bool) {
	m, ok := command.(map[string]any)
	if !ok {
		return "", false
	}
	action, _ := m["action"].(string)
	target, _ := m["target"].(string)
	if entity, ok := f.actions[action]; ok && entity == target {
		return action, true
	}
	return "", false
}

func (f *fakeFunctions) DisplayName(action string) string {
	return "Display " + action
}

func (f *fakeFunctions) Context(name string) application.FunctionContext {
	return f.needs[name]
}

func (f *fakeFunctions) Call(_ context.Context, name string, args map[string]any) (any, error) {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return f.replies[name], nil
}

func (f *fakeFunctions) BindSender(sender application.CommandSender) {
	f.sender = sender
}

func newTestClient(t *testing.T, functions application.SimpleFunctions) (*homeassistant.Client, *fakeHA) {
	t.Helper()
	fake, srv := newFakeHA(t)
	exec := newTestExecutor(t, srv.URL, nil)
	reg := homeassistant.NewRegistry(exec, homeassistant.Policy{
		AllowedDomains:  []string{"light", "switch", "media_player"},
		AllowedEntities: []string{"light.kitchen", "switch.coffee", "media_player.tv"},
	}, discardLogger())

	client := homeassistant.NewClient(exec, reg, functions, discardLogger())
	require.NoError(t, client.Initialize(context.Background()))
	return client, fake
}

func batchOf(cmds ...domain.Command) domain.CommandBatch {
	return domain.CommandBatch{Commands: cmds}
}

func TestSendCommands_EmptyBatch(t *testing.T) {
	client, _ := newTestClient(t, nil)

	results, err := client.SendCommands(context.Background(), domain.CommandBatch{}, application.SendOptions{})
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestSendCommands_RejectsUnknownSchemaVersion(t *testing.T) {
	client, _ := newTestClient(t, nil)

	_, err := client.SendCommands(context.Background(), domain.CommandBatch{Version: 9}, application.SendOptions{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedSchemaVersion)
}

func TestSendCommands_UnknownTarget(t *testing.T) {
	client, fake := newTestClient(t, nil)

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "turn_on", Target: "nonexistent"}), application.SendOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Contains(t, results[0].Error, "Unknown target: nonexistent")
	assert.False(t, results[0].Success)
	assert.Empty(t, fake.serviceCalls())

	raw, err := json.Marshal(results[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"success"`)
}

func TestSendCommands_UnsupportedAction(t *testing.T) {
	client, _ := newTestClient(t, nil)

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "set_temperature", Target: "coffee maker"}), application.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Action 'set_temperature' not supported for target 'coffee maker'", results[0].Error)
}

func TestSendCommands_MissingRequiredFields(t *testing.T) {
	client, fake := newTestClient(t, nil)

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "volume_set", Target: "tv"}), application.SendOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Missing required fields for action 'volume_set': ['volume_level']", results[0].Error)
	assert.Empty(t, fake.serviceCalls())
}

func TestSendCommands_ExecutesServiceCall(t *testing.T) {
	client, fake := newTestClient(t, nil)
	fake.callBody = `[{"entity_id":"light.kitchen","state":"on"}]`

	results, err := client.SendCommands(context.Background(), batchOf(domain.Command{
		Action: "turn on",
		Target: "Kitchen Light",
		Data:   map[string]any{"brightness": 200},
	}), application.SendOptions{Debug: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, r.Success)
	assert.Empty(t, r.Error)
	assert.Equal(t, "kitchen light", r.Target)
	assert.Equal(t, "turn_on", r.Action)
	assert.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, []any{map[string]any{"entity_id": "light.kitchen", "state": "on"}}, r.Response)

	calls := fake.serviceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "light", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, "Bearer test-token", calls[0].Auth)
	assert.Equal(t, map[string]any{"entity_id": "light.kitchen", "brightness": float64(200)}, calls[0].Body)
}

func TestSendCommands_EmptyResponseBody(t *testing.T) {
	client, fake := newTestClient(t, nil)
	fake.callBody = ""

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "turn_off", Target: "coffee maker"}), application.SendOptions{})
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.Equal(t, map[string]any{}, results[0].Response)
}

func TestSendCommands_ParseFailure(t *testing.T) {
	client, fake := newTestClient(t, nil)
	fake.callBody = "<html>oops</html>"

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "turn_off", Target: "coffee maker"}), application.SendOptions{})
	require.NoError(t, err)

	r := results[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "Failed to parse response JSON")
	assert.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "<html>oops</html>", r.RawResponse)
}

func TestSendCommands_TransportFailure(t *testing.T) {
	client, fake := newTestClient(t, nil)
	fake.callStatus = http.StatusServiceUnavailable

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "turn_on", Target: "coffee maker"}), application.SendOptions{})
	require.NoError(t, err)

	r := results[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "Failed to execute command after retries")
	assert.Contains(t, r.URL, "/api/services/switch/turn_on")
	assert.Equal(t, map[string]any{"entity_id": "switch.coffee"}, r.Payload)
	assert.Len(t, fake.serviceCalls(), 3)
}

func TestSendCommands_BatchDoesNotShortCircuit(t *testing.T) {
	client, fake := newTestClient(t, nil)

	results, err := client.SendCommands(context.Background(), batchOf(
		domain.Command{Action: "turn_on", Target: "kitchen light"},
		domain.Command{Action: "turn_on", Target: "garage door"},
		domain.Command{Action: "turn_off", Target: "coffee maker"},
	), application.SendOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, "Unknown target: garage door", results[1].Error)
	assert.True(t, results[2].Success)
	assert.Len(t, fake.serviceCalls(), 2)
}

func TestSendCommands_SimpleFunction(t *testing.T) {
	functions := &fakeFunctions{
		actions: map[string]string{"create_automation": "virtual.automation", "get_weather": "virtual.weather"},
		needs: map[string]application.FunctionContext{
			"create_automation": {NeedsUser: true, NeedsBatch: true},
		},
		replies: map[string]any{"get_weather": "The weather in Turin is 21 degrees."},
	}
	client, fake := newTestClient(t, functions)
	assert.Same(t, client, functions.sender)

	batch := batchOf(
		domain.Command{Action: "turn_on", Target: "kitchen light"},
		domain.Command{Action: "get_weather", Target: "virtual.weather", Data: map[string]any{"place": "Turin"}},
		domain.Command{Action: "create_automation", Target: "virtual.automation", Data: map[string]any{"name": "morning"}},
	)
	results, err := client.SendCommands(context.Background(), batch, application.SendOptions{UserID: "42"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	weather := results[1]
	assert.True(t, weather.Success)
	assert.Equal(t, domain.KindSimpleFunction, weather.Type)
	assert.Equal(t, "Display get_weather", weather.DisplayName)
	assert.Equal(t, "The weather in Turin is 21 degrees.", weather.Response)
	assert.Equal(t, "virtual.weather", weather.Target)

	assert.Equal(t, []string{"get_weather", "create_automation"}, functions.calls)
	assert.Equal(t, map[string]any{"place": "Turin"}, functions.args[0])

	automationArgs := functions.args[1]
	assert.Equal(t, "42", automationArgs["user_id"])
	assert.Equal(t, "morning", automationArgs["name"])
	assert.Len(t, automationArgs["current_request_commands"], 3)

	// simple functions never reach Home Assistant
	assert.Len(t, fake.serviceCalls(), 1)
	// the caller's data map is left alone
	assert.NotContains(t, batch.Commands[2].Data, "user_id")
}

func TestSendCommands_UnregisteredSimpleFunctionIsReported(t *testing.T) {
	functions := &fakeFunctions{
		actions: map[string]string{"dance": "virtual.fun"},
		errs:    map[string]error{"dance": application.ErrFunctionNotFound},
	}
	client, _ := newTestClient(t, functions)

	results, err := client.SendCommands(context.Background(),
		batchOf(domain.Command{Action: "dance", Target: "virtual.fun"}), application.SendOptions{})
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.Nil(t, results[0].Response)
}

func TestSendCommands_SimpleFunctionFailurePropagates(t *testing.T) {
	boom := errors.New("store closed")
	functions := &fakeFunctions{
		actions: map[string]string{"list_automations": "virtual.automation"},
		errs:    map[string]error{"list_automations": boom},
	}
	client, _ := newTestClient(t, functions)

	results, err := client.SendCommands(context.Background(), batchOf(
		domain.Command{Action: "turn_on", Target: "kitchen light"},
		domain.Command{Action: "list_automations", Target: "virtual.automation"},
	), application.SendOptions{})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, results, 1)
}

func TestInitialize_RequiresHomeLocation(t *testing.T) {
	fake, srv := newFakeHA(t)
	fake.config = map[string]any{}
	exec := newTestExecutor(t, srv.URL, nil)
	client := homeassistant.NewClient(exec, homeassistant.NewRegistry(exec, homeassistant.Policy{}, discardLogger()), nil, discardLogger())

	err := client.Initialize(context.Background())
	assert.ErrorIs(t, err, homeassistant.ErrLocationUnavailable)
	assert.Zero(t, fake.hitCount("states"))
}

func TestGenerateDevicesPromptFragment(t *testing.T) {
	client, _ := newTestClient(t, nil)

	var doc struct {
		Devices map[string][]string `json:"devices"`
	}
	fragment := client.GenerateDevicesPromptFragment()
	require.NoError(t, json.Unmarshal([]byte(fragment), &doc))

	assert.Equal(t, []string{"toggle", "turn off", "turn on"}, doc.Devices["kitchen light"])
	assert.Equal(t, []string{"turn on", "volume set"}, doc.Devices["tv"])
	assert.Contains(t, fragment, "\n  \"devices\": {\n    \"")
}

func TestDevicesPromptFragment_Empty(t *testing.T) {
	assert.Equal(t, "{\n  \"devices\": {}\n}", homeassistant.DevicesPromptFragment(nil))
}
