package application

import (
	"context"
	"errors"

	"home-voice/internal/domain"
)

// ErrFunctionNotFound is matched by the error a SimpleFunctions registry
// returns for a name it does not know.
var ErrFunctionNotFound = errors.New("simple function not found")

type SendOptions struct {
	Debug bool
	// UserID is empty for voice requests that are not tied to a user.
	UserID string
}

// CommandSender dispatches a batch and returns one result per command, or
// nil when the batch is empty.
type CommandSender interface {
	SendCommands(ctx context.Context, batch domain.CommandBatch, opts SendOptions) ([]domain.CommandResult, error)
}

// FunctionContext lists the request context a simple function wants injected
// into its arguments.
type FunctionContext struct {
	NeedsUser  bool
	NeedsBatch bool
}

type SimpleFunctions interface {
	FindMatchingAction(command any) (string, bool)
	DisplayName(action string) string
	Context(name string) FunctionContext
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// DeviceCatalog is the read side of the entity registry.
type DeviceCatalog interface {
	GenerateDevicesPromptFragment() string
}
