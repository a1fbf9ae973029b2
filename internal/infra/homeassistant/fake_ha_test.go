package homeassistant_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"home-voice/config"
	"home-voice/internal/infra/homeassistant"
)

type serviceCall struct {
	Domain  string
	Service string
	Body    map[string]any
	Auth    string
}

// fakeHA is a minimal Home Assistant REST server.
type fakeHA struct {
	mu sync.Mutex

	services []map[string]any
	states   []map[string]any
	config   map[string]any

	statesStatus int
	statesBody   string
	callStatus   int
	callBody     string

	calls []serviceCall
	hits  map[string]int
}

func newFakeHA(t *testing.T) (*fakeHA, *httptest.Server) {
	t.Helper()

	f := &fakeHA{
		services: []map[string]any{
			{"domain": "light", "services": map[string]any{
				"turn_on":  map[string]any{"fields": map[string]any{"brightness": map[string]any{"required": false}}},
				"turn_off": map[string]any{},
				"toggle":   map[string]any{},
			}},
			{"domain": "switch", "services": map[string]any{
				"turn_on":  map[string]any{},
				"turn_off": map[string]any{},
			}},
			{"domain": "media_player", "services": map[string]any{
				"volume_set": map[string]any{"fields": map[string]any{
					"entity_id":    map[string]any{"required": true},
					"volume_level": map[string]any{"required": true},
				}},
				"turn_on": map[string]any{},
			}},
		},
		states: []map[string]any{
			{"entity_id": "light.kitchen", "state": "off", "attributes": map[string]any{"friendly_name": "Kitchen Light"}},
			{"entity_id": "light.ups_status", "state": "on", "attributes": map[string]any{"friendly_name": "UPS Status Light"}},
			{"entity_id": "switch.coffee", "state": "off", "attributes": map[string]any{"friendly_name": "Coffee Maker"}},
			{"entity_id": "media_player.tv", "state": "idle", "attributes": map[string]any{"friendly_name": "TV"}},
			{"entity_id": "sensor.temperature", "state": "21", "attributes": map[string]any{"friendly_name": "Temperature"}},
			{"entity_id": "fan.bedroom", "state": "off", "attributes": map[string]any{}},
		},
		config:     map[string]any{"latitude": 45.07, "longitude": 7.68},
		callStatus: http.StatusOK,
		callBody:   `[]`,
		hits:       map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) {
		f.hit("services")
		f.writeJSON(w, http.StatusOK, f.services)
	})
	mux.HandleFunc("GET /api/states", func(w http.ResponseWriter, r *http.Request) {
		f.hit("states")
		f.mu.Lock()
		status, body := f.statesStatus, f.statesBody
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		f.writeJSON(w, http.StatusOK, f.states)
	})
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		f.hit("config")
		f.writeJSON(w, http.StatusOK, f.config)
	})
	mux.HandleFunc("POST /api/services/{domain}/{service}", func(w http.ResponseWriter, r *http.Request) {
		f.hit("call")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.calls = append(f.calls, serviceCall{
			Domain:  r.PathValue("domain"),
			Service: r.PathValue("service"),
			Body:    body,
			Auth:    r.Header.Get("Authorization"),
		})
		status, respBody := f.callStatus, f.callBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeHA) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[name]++
}

func (f *fakeHA) hitCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeHA) serviceCalls() []serviceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]serviceCall(nil), f.calls...)
}

func (f *fakeHA) failStates(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statesStatus, f.statesBody = status, body
}

func (f *fakeHA) writeJSON(w http.ResponseWriter, status int, v any) {
	f.mu.Lock()
	data, _ := json.Marshal(v)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) config.HomeAssistantConfig {
	return config.HomeAssistantConfig{
		BaseURL:        baseURL,
		Token:          "test-token",
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		AllowedDomains: []string{"light", "switch", "media_player"},
	}
}

func newTestExecutor(t *testing.T, baseURL string, sleeper *recordingSleeper) *homeassistant.Executor {
	t.Helper()
	if sleeper == nil {
		sleeper = &recordingSleeper{}
	}
	exec, err := homeassistant.NewExecutor(testConfig(baseURL), discardLogger(), homeassistant.WithSleep(sleeper.Sleep))
	if err != nil {
		t.Fatalf("creating executor: %v", err)
	}
	return exec
}
