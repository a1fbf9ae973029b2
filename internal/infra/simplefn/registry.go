// Package simplefn implements the assistant's local functions (weather,
// Wikipedia, news, calendar, automations) and matches LLM commands against
// the virtual entities declared in the command schema document.
package simplefn

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"home-voice/config"
	"home-voice/internal/application"
	"home-voice/internal/domain"
)

// Handler runs one simple function. Expected failures are returned as a
// user-facing string; the error is reserved for unexpected ones.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type Function struct {
	Name    string
	Handler Handler
	Context application.FunctionContext
}

// SchemaEntry describes one virtual entity of the command schema.
type SchemaEntry struct {
	Actions     []string `yaml:"actions" json:"actions"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
}

// LocationProvider supplies the home coordinates for home_weather.
type LocationProvider interface {
	HomeLocation() (domain.Location, bool)
}

type Registry struct {
	cfg        config.SimpleFunctionsConfig
	schema     map[string]SchemaEntry
	functions  map[string]Function
	httpClient *http.Client
	location   LocationProvider
	events     EventStore
	automation AutomationStore
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.RWMutex
	sender application.CommandSender
}

type Option func(*Registry)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.httpClient = c }
}

func WithLocation(p LocationProvider) Option {
	return func(r *Registry) { r.location = p }
}

// WithEventStore enables the calendar functions.
func WithEventStore(s EventStore) Option {
	return func(r *Registry) { r.events = s }
}

// WithAutomationStore enables the automation functions.
func WithAutomationStore(s AutomationStore) Option {
	return func(r *Registry) { r.automation = s }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSchema replaces the schema loaded from cfg.CommandSchema.
func WithSchema(schema map[string]SchemaEntry) Option {
	return func(r *Registry) { r.schema = schema }
}

// New loads the command schema and registers every function whose
// dependencies are available.
func New(cfg config.SimpleFunctionsConfig, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		logger:     logger,
		functions:  make(map[string]Function),
	}
	if r.httpClient.Timeout == 0 {
		r.httpClient.Timeout = 10 * time.Second
	}
	if cfg.CommandSchema != "" {
		r.schema = LoadSchema(cfg.CommandSchema, logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.schema == nil {
		r.schema = map[string]SchemaEntry{}
	}

	r.registerInformation()
	if r.events != nil {
		r.registerCalendar()
	}
	if r.automation != nil {
		r.registerAutomations()
	}
	r.register(Function{Name: "generate_conversational_response", Handler: r.generateConversationalResponse})

	return r
}

// LoadSchema reads the command schema document. A missing or malformed file
// is logged and yields an empty schema.
func LoadSchema(path string, logger *slog.Logger) map[string]SchemaEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read command schema", "path", path, "error", err)
		return map[string]SchemaEntry{}
	}

	var schema map[string]SchemaEntry
	if err := yaml.Unmarshal(data, &schema); err != nil {
		logger.Error("failed to parse command schema", "path", path, "error", err)
		return map[string]SchemaEntry{}
	}
	if schema == nil {
		schema = map[string]SchemaEntry{}
	}
	return schema
}

func (r *Registry) register(fn Function) {
	r.functions[fn.Name] = fn
}

// BindSender lets automations re-send stored commands through the facade.
func (r *Registry) BindSender(sender application.CommandSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = sender
}

func (r *Registry) commandSender() application.CommandSender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sender
}

// Names lists the registered functions.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindMatchingAction reports the action of the first command whose target
// is a virtual entity declaring that action. command is a single command
// map or a list of them.
func (r *Registry) FindMatchingAction(command any) (string, bool) {
	renamed := replaceTargetWithEntityID(command)

	var items []any
	switch v := renamed.(type) {
	case map[string]any:
		items = []any{v}
	case []any:
		items = v
	default:
		return "", false
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entity, _ := m["entity_id"].(string)
		if entity == "" {
			continue
		}
		action, _ := m["action"].(string)
		if slices.Contains(r.schema[entity].Actions, action) {
			return action, true
		}
	}
	return "", false
}

func replaceTargetWithEntityID(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "target" {
				k = "entity_id"
			}
			out[k] = replaceTargetWithEntityID(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = replaceTargetWithEntityID(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = replaceTargetWithEntityID(item)
		}
		return out
	default:
		return v
	}
}

// DisplayName returns the display name of the virtual entity declaring
// action, or "" when none does.
func (r *Registry) DisplayName(action string) string {
	entities := make([]string, 0, len(r.schema))
	for id := range r.schema {
		entities = append(entities, id)
	}
	sort.Strings(entities)

	for _, id := range entities {
		if slices.Contains(r.schema[id].Actions, action) {
			return r.schema[id].DisplayName
		}
	}
	return ""
}

// FunctionsPromptFragment lists each virtual entity with the actions that
// have a registered handler, as indented JSON for the intent prompt.
func (r *Registry) FunctionsPromptFragment() string {
	out := make(map[string][]string, len(r.schema))
	for id, entry := range r.schema {
		var actions []string
		for _, a := range entry.Actions {
			if _, ok := r.functions[a]; ok {
				actions = append(actions, a)
			}
		}
		if len(actions) > 0 {
			out[id] = actions
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (r *Registry) Context(name string) application.FunctionContext {
	return r.functions[name].Context
}

func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.functions[name]
	if !ok {
		return nil, &FunctionNotFoundError{Name: name}
	}

	r.logger.Debug("calling simple function", "function", name)
	return fn.Handler(ctx, args)
}
