package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"home-voice/internal/application"
	"home-voice/internal/domain"
)

// Client is the entry point the rest of the assistant uses. It wires the
// executor, registry and simple functions into one dispatcher.
type Client struct {
	exec       *Executor
	registry   *Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// senderBinder is implemented by simple function registries that need to
// send commands back through the client (automations).
type senderBinder interface {
	BindSender(sender application.CommandSender)
}

func NewClient(exec *Executor, registry *Registry, functions application.SimpleFunctions, logger *slog.Logger) *Client {
	c := &Client{
		exec:       exec,
		registry:   registry,
		dispatcher: NewDispatcher(exec, registry, functions, logger),
		logger:     logger,
	}
	if b, ok := functions.(senderBinder); ok {
		b.BindSender(c)
	}
	return c
}

// Initialize fetches the home location, which must be available, and then
// loads the domain catalog and the entity map.
func (c *Client) Initialize(ctx context.Context) error {
	if _, err := c.registry.GetHomeLocation(ctx); err != nil {
		c.logger.Error("failed to get home location", "error", err)
		return fmt.Errorf("getting home location: %w", err)
	}

	if err := c.registry.Refresh(ctx); err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	return nil
}

func (c *Client) SendCommands(ctx context.Context, batch domain.CommandBatch, opts application.SendOptions) ([]domain.CommandResult, error) {
	return c.dispatcher.Dispatch(ctx, batch, opts)
}

// GenerateDevicesPromptFragment renders the current entity map for the LLM
// prompt as {"devices": {name: [actions]}} with underscores shown as spaces.
func (c *Client) GenerateDevicesPromptFragment() string {
	return DevicesPromptFragment(c.registry.EntityMap())
}

func (c *Client) FetchDomainActions(ctx context.Context) (domain.DomainActions, error) {
	return c.registry.FetchDomainActions(ctx)
}

func (c *Client) FetchEntityMap(ctx context.Context, filter EntityFilter) (domain.EntityMap, error) {
	return c.registry.FetchEntityMap(ctx, filter)
}

func (c *Client) GetServiceInfo(ctx context.Context, serviceDomain, action string) *domain.ServiceSchema {
	return c.registry.GetServiceInfo(ctx, serviceDomain, action)
}

func (c *Client) GetHomeLocation(ctx context.Context) (domain.Location, error) {
	return c.registry.GetHomeLocation(ctx)
}

func (c *Client) Registry() *Registry {
	return c.registry
}

func DevicesPromptFragment(entities domain.EntityMap) string {
	devices := make(map[string][]string, len(entities))
	for name, e := range entities {
		actions := make([]string, len(e.Actions))
		for i, a := range e.Actions {
			actions[i] = strings.ReplaceAll(a, "_", " ")
		}
		devices[name] = actions
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// map[string][]string always encodes
	_ = enc.Encode(map[string]any{"devices": devices})

	return strings.TrimSuffix(buf.String(), "\n")
}
