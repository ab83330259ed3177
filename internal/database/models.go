package database

import (
	"encoding/json"
	"fmt"
)

// JSON column helpers. sqlite stores structured columns as TEXT; these keep
// the marshal/unmarshal boundary in one place.

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal column: %w", err)
	}
	return string(data), nil
}

func unmarshalContext(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context column: %w", err)
	}
	return out, nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string array column: %w", err)
	}
	return out, nil
}

func unmarshalInt64s(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal int array column: %w", err)
	}
	return out, nil
}
