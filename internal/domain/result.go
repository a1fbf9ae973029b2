package domain

// CommandResult is the per-command outcome returned to the orchestrator.
// A result carries either Error or Success, never both; build it through
// FailedResult or SucceededResult.
type CommandResult struct {
	Target string `json:"target"`
	Action string `json:"action"`

	Error   string `json:"error,omitempty"`
	Success bool   `json:"success,omitempty"`

	Status      int            `json:"status,omitempty"`
	Response    any            `json:"response,omitempty"`
	RawResponse string         `json:"raw_response,omitempty"`
	URL         string         `json:"url,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Type        CommandKind    `json:"type,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
}

func FailedResult(target, action, msg string) CommandResult {
	return CommandResult{Target: target, Action: action, Error: msg}
}

func SucceededResult(target, action string) CommandResult {
	return CommandResult{Target: target, Action: action, Success: true}
}

func (r CommandResult) Failed() bool {
	return r.Error != ""
}

// CountSucceeded reports how many results have no error.
func CountSucceeded(results []CommandResult) int {
	n := 0
	for _, r := range results {
		if !r.Failed() {
			n++
		}
	}
	return n
}
