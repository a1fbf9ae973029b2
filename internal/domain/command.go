package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CommandSchemaVersion is the newest batch layout understood by the dispatcher.
const CommandSchemaVersion = 1

var (
	ErrUnsupportedSchemaVersion = errors.New("domain: unsupported command schema version")
	ErrMalformedBatch           = errors.New("domain: malformed command batch")
)

// CommandKind tags a command as either a Home Assistant service call or a
// locally implemented simple function.
type CommandKind string

const (
	KindDevice         CommandKind = "device"
	KindSimpleFunction CommandKind = "simple_function"
)

// Command is one {action, target, data} request produced by the intent layer.
type Command struct {
	Action string         `json:"action"`
	Target string         `json:"target"`
	Data   map[string]any `json:"data,omitempty"`
}

// Normalized returns the action with spaces replaced by underscores and the
// target lower-cased.
func (c Command) Normalized() (action, target string) {
	return strings.ReplaceAll(c.Action, " ", "_"), strings.ToLower(c.Target)
}

// AsMap renders the command in its wire shape for schema matching and storage.
func (c Command) AsMap() map[string]any {
	m := map[string]any{
		"action": c.Action,
		"target": c.Target,
	}
	if len(c.Data) > 0 {
		m["data"] = c.Data
	}
	return m
}

// CommandFromMap is the inverse of AsMap. Unknown keys are ignored.
func CommandFromMap(m map[string]any) (Command, error) {
	action, ok := m["action"].(string)
	if !ok || action == "" {
		return Command{}, fmt.Errorf("%w: command without action", ErrMalformedBatch)
	}

	cmd := Command{Action: action}
	if target, ok := m["target"].(string); ok {
		cmd.Target = target
	}
	if data, ok := m["data"].(map[string]any); ok {
		cmd.Data = data
	}
	return cmd, nil
}

// CommandBatch is the versioned payload the LLM produces.
type CommandBatch struct {
	Version  int       `json:"version,omitempty"`
	Commands []Command `json:"commands"`
}

// ParseBatch decodes and validates a JSON command batch.
func ParseBatch(raw []byte) (CommandBatch, error) {
	var batch CommandBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return CommandBatch{}, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	if err := batch.Validate(); err != nil {
		return CommandBatch{}, err
	}
	return batch, nil
}

// Validate checks the schema version. Per-command problems are reported by
// the dispatcher as results, not here.
func (b CommandBatch) Validate() error {
	if b.Version < 0 || b.Version > CommandSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSchemaVersion, b.Version)
	}
	return nil
}

// CommandMaps returns every command in wire shape.
func (b CommandBatch) CommandMaps() []map[string]any {
	out := make([]map[string]any, len(b.Commands))
	for i, c := range b.Commands {
		out[i] = c.AsMap()
	}
	return out
}
