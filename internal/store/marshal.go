package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is the TEXT form of timestamps. Always UTC.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalStrings converts a string list to JSON TEXT for storage.
// A nil list is stored as "[]".
func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses JSON TEXT into a string list.
// Returns an empty (non-nil) slice for empty input.
func unmarshalStrings(data string) ([]string, error) {
	list := []string{}
	if data == "" || data == "[]" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	return list, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
