package application

import (
	"context"
	"fmt"
	"strings"

	"home-voice/internal/domain"
)

// IntentContext is what the parser shows the model besides the utterance:
// the devices prompt fragment and the virtual entities of the simple
// functions.
type IntentContext struct {
	Devices   string
	Functions string
}

type IntentParser interface {
	Parse(ctx context.Context, text string, catalog IntentContext) (domain.CommandBatch, error)
}

// FunctionCatalog lists the simple functions the model may target.
type FunctionCatalog interface {
	FunctionsPromptFragment() string
}

// SystemPrompt builds the instructions shared by every LLM provider.
func SystemPrompt(catalog IntentContext) string {
	functions := catalog.Functions
	if functions == "" {
		functions = "{}"
	}
	return fmt.Sprintf(`You are a home assistant. Turn the user's request into Home Assistant commands.

Devices you can control (friendly name -> supported actions):
%s

Virtual targets for information and organisation (entity -> actions):
%s

IMPORTANT:
- Use the EXACT friendly name of a device as "target" and one of its listed actions
- Actions use underscores, e.g. "turn_on", "set_temperature"
- Put service parameters in "data", e.g. {"brightness": 120} or {"temperature": 21}
- For weather, news, Wikipedia, calendar and automations use the virtual target and put the arguments in "data"
- A request may need several commands; keep them in the order they should run
- If nothing applies, return an empty commands list
- The user may speak in English or Spanish, understand both

Respond ONLY with valid JSON (no markdown, no backticks):
{
  "version": %d,
  "commands": [
    {"action": "turn_on", "target": "kitchen light", "data": {"brightness": 120}}
  ]
}`, catalog.Devices, functions, domain.CommandSchemaVersion)
}

// ParseModelReply strips code fences from a model reply and decodes the
// command batch inside it.
func ParseModelReply(reply string) (domain.CommandBatch, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	batch, err := domain.ParseBatch([]byte(text))
	if err != nil {
		return domain.CommandBatch{}, fmt.Errorf("parsing intent JSON (%s): %w", text, err)
	}
	return batch, nil
}
