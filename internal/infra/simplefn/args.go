package simplefn

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Arguments come from LLM-produced JSON, so numbers arrive as float64 and
// anything may arrive as a string.

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64, int, int64, bool, json.Number:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, key, v)
}

func intArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, key, err)
		}
		return int(n), nil
	case string:
		if strings.TrimSpace(t) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidArgument, key, v)
}

func boolArg(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, key, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidArgument, key, v)
}

// mapListArg accepts []any of maps or []map[string]any.
func mapListArg(args map[string]any, key string) ([]map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s must contain objects, got %T", ErrInvalidArgument, key, item)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrInvalidArgument, key, v)
}
