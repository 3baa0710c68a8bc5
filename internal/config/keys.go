package config

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// kind is the JSON type a config key holds.
type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
)

// keySpec describes one settable dot key.
type keySpec struct {
	kind   kind
	secret bool
	min    *int     // lower bound for ints
	oneOf  []string // allowed values for strings
}

func atLeast(n int) *int { return &n }

// schema lists every key of Config. Keys outside it are rejected by
// SetValue.
var schema = map[string]keySpec{
	"data_dir":             {kind: kindString},
	"log_level":            {kind: kindString, oneOf: []string{"debug", "info", "warn", "error"}},
	"max_concurrent":       {kind: kindInt, min: atLeast(1)},
	"poll_interval_ms":     {kind: kindInt, min: atLeast(1)},
	"system_prompt_suffix": {kind: kindString},

	"llm.provider":           {kind: kindString, oneOf: []string{"anthropic"}},
	"llm.base_url":           {kind: kindString},
	"llm.api_key":            {kind: kindString, secret: true},
	"llm.model":              {kind: kindString},
	"llm.max_tokens":         {kind: kindInt, min: atLeast(1)},
	"llm.max_context_tokens": {kind: kindInt, min: atLeast(0)},
	"llm.beta":               {kind: kindString},

	// keep < 0 keeps every screenshot.
	"images.keep":  {kind: kindInt},
	"images.chunk": {kind: kindInt, min: atLeast(1)},

	"tools.bash_timeout_seconds": {kind: kindInt, min: atLeast(1)},
	"tools.display":              {kind: kindString},
	"tools.screenshot_dir":       {kind: kindString},
	"tools.screen_width":         {kind: kindInt, min: atLeast(1)},
	"tools.screen_height":        {kind: kindInt, min: atLeast(1)},

	"http.enabled":       {kind: kindBool},
	"http.listen":        {kind: kindString},
	"voice.enabled":      {kind: kindBool},
	"transcript.enabled": {kind: kindBool},
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return schema[key].secret
}

// parseValue converts raw command-line text to the value stored for key.
func parseValue(key, raw string) (any, error) {
	entry, ok := schema[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	switch entry.kind {
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer, got %q", key, raw)
		}
		if entry.min != nil && n < *entry.min {
			return nil, fmt.Errorf("%s: must be at least %d", key, *entry.min)
		}
		// Stored as float64 so it compares equal to values read back from JSON.
		return float64(n), nil
	case kindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false, got %q", key, raw)
		}
		return b, nil
	default:
		if len(entry.oneOf) > 0 && !slices.Contains(entry.oneOf, raw) {
			return nil, fmt.Errorf("%s: must be one of %s", key, strings.Join(entry.oneOf, ", "))
		}
		return raw, nil
	}
}

// Flatten turns a nested JSON map into dot keys, e.g. {"llm": {"model": m}}
// into {"llm.model": m}. Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar in the way of a deeper key
// is replaced by a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		section := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := section[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				section[part] = next
			}
			section = next
		}
		section[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of flat with secret values reduced to "***"
// plus their last four characters. Empty secrets stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, isString := v.(string)
		if !IsSecretKey(k) || !isString || s == "" {
			out[k] = v
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}
