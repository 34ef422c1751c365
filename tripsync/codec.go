// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// settingsDocID is the fixed document id of the settings singleton.
const settingsDocID = "preferences"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Remote document fields arrive as map[string]any. Numbers are float64
// (or json.Number) when decoded from JSON, native ints when the
// in-memory store hands the map through. The helpers below normalize
// without losing millisecond precision.

func docString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func docFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func docInt64(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

func docInt(data map[string]any, key string) int {
	return int(docInt64(data, key))
}

// requireString rejects documents missing a field the local schema
// cannot represent as absent.
func requireString(data map[string]any, key string) (string, error) {
	s, ok := data[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("document missing %q", key)
	}
	return s, nil
}
