package simplefn

import "context"

// ConversationalResponse marks a request the conversation model should
// answer directly instead of a device or lookup result.
type ConversationalResponse struct {
	Type         string         `json:"type"`
	FunctionName string         `json:"function_name"`
	Query        string         `json:"query,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Response     string         `json:"response"`
	Error        string         `json:"error,omitempty"`
}

func (c ConversationalResponse) String() string {
	return c.Response
}

func (r *Registry) generateConversationalResponse(_ context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	resp := ConversationalResponse{
		Type:         "simple_function",
		FunctionName: "generate_conversational_response",
	}
	if query == "" {
		resp.Response = "I didn't receive a query to respond to."
		resp.Error = "Missing query parameter"
		return resp, nil
	}

	resp.Query = query
	resp.Context, _ = args["context"].(map[string]any)
	if resp.Context == nil {
		resp.Context = map[string]any{}
	}
	resp.Response = "Generating response for: " + query
	return resp, nil
}
