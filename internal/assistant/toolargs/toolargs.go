// Package toolargs normalises the loose argument shapes an LLM produces
// when calling a tool. The model may send a proper dict with an "action"
// field, a bare verb string, a "verb:value" shorthand, or a JSON object
// packed into a single string argument. This package coerces all of them
// into (action, args) once, so tool bodies see one shape.
package toolargs

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Args is the normalised keyword-argument map a tool body receives.
type Args map[string]any

// Spec describes one tool's vocabulary: its verbs, and where the value of
// a "verb:value" shorthand should land for each verb.
type Spec struct {
	Verbs []string
	// ShorthandParam maps a verb to the canonical parameter that receives
	// the shorthand value, e.g. "search" -> "search", "get" -> "client_id".
	ShorthandParam map[string]string
}

// Supports reports whether verb is in the tool's vocabulary.
func (s Spec) Supports(verb string) bool {
	for _, v := range s.Verbs {
		if v == verb {
			return true
		}
	}
	return false
}

// VerbList renders the vocabulary for error messages, sorted for
// deterministic output.
func (s Spec) VerbList() string {
	verbs := append([]string(nil), s.Verbs...)
	sort.Strings(verbs)
	return strings.Join(verbs, ", ")
}

// UnknownVerbError is the standard message for an unrecognised action.
func (s Spec) UnknownVerbError(verb string) string {
	return fmt.Sprintf("unknown action %q; supported actions: %s", verb, s.VerbList())
}

// Parse extracts (action, args) from the raw tool input. Accepted shapes,
// in order of preference:
//
//  1. a dict with an "action" field plus keyword args;
//  2. a dict whose only meaningful entry is "__arg1": a verb name, a
//     "verb:value" / "verb=value" shorthand, or a JSON object embedding
//     "action".
//
// The shorthand value is routed to the verb's canonical parameter.
func Parse(input map[string]any, spec Spec) (string, Args, error) {
	args := Args{}
	for k, v := range input {
		if k != "action" && k != "__arg1" {
			args[k] = v
		}
	}

	if raw, ok := input["action"]; ok {
		verb, ok := raw.(string)
		if !ok {
			return "", nil, fmt.Errorf("action must be a string, got %T", raw)
		}
		verb = strings.TrimSpace(strings.ToLower(verb))
		if !spec.Supports(verb) {
			return "", nil, fmt.Errorf("%s", spec.UnknownVerbError(verb))
		}
		return verb, args, nil
	}

	if raw, ok := input["__arg1"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", nil, fmt.Errorf("unstructured argument must be a string, got %T", raw)
		}
		return parseShorthand(s, args, spec)
	}

	return "", nil, fmt.Errorf("missing action; supported actions: %s", spec.VerbList())
}

func parseShorthand(s string, args Args, spec Spec) (string, Args, error) {
	s = strings.TrimSpace(s)

	// A JSON object packed into the string argument.
	if strings.HasPrefix(s, "{") {
		var embedded map[string]any
		if err := json.Unmarshal([]byte(s), &embedded); err == nil {
			return Parse(embedded, spec)
		}
		// Fall through: treat the malformed JSON as an unknown verb below.
	}

	verb := s
	value := ""
	for _, sep := range []string{":", "="} {
		if i := strings.Index(s, sep); i > 0 {
			verb, value = s[:i], s[i+1:]
			break
		}
	}
	verb = strings.TrimSpace(strings.ToLower(verb))
	value = strings.TrimSpace(value)

	if !spec.Supports(verb) {
		return "", nil, fmt.Errorf("%s", spec.UnknownVerbError(verb))
	}
	if value != "" {
		param, ok := spec.ShorthandParam[verb]
		if !ok {
			param = verb
		}
		args[param] = value
	}
	return verb, args, nil
}

// Int coerces an LLM-supplied value to int64. Accepted: integer types,
// a float with zero fractional part, a digit string, or a dict nesting
// the value under "id".
func Int(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing integer value")
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", t)
		}
		return n, nil
	case map[string]any:
		if inner, ok := t["id"]; ok {
			return Int(inner)
		}
		return 0, fmt.Errorf("expected integer, got object without id")
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// OptionalInt is Int for values that may be absent. Absent and nil both
// return (nil, nil).
func OptionalInt(args Args, key string) (*int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := Int(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}

// String reads a non-empty string argument.
func String(args Args, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing %s", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

// OptionalString reads a string argument that may be absent or empty.
func OptionalString(args Args, key string) *string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

// Date coerces an LLM-supplied value to a date. Accepted: ISO-8601,
// DD/MM/YYYY, DD-MM-YYYY, a dict wrapping one of these under
// date/value/iso/text, or an existing time.Time.
func Date(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing date value")
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", t)
	case map[string]any:
		for _, key := range []string{"date", "value", "iso", "text"} {
			if inner, ok := t[key]; ok {
				return Date(inner)
			}
		}
		return time.Time{}, fmt.Errorf("date object missing date/value/iso/text")
	default:
		return time.Time{}, fmt.Errorf("expected date, got %T", v)
	}
}

// OptionalDate is Date for values that may be absent.
func OptionalDate(args Args, key string) (*time.Time, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	d, err := Date(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &d, nil
}

// Records extracts the bulk input for a write verb. When args carries a
// list under listKey (e.g. "appointments"), each element is one record;
// otherwise the keyword args themselves are the single record.
func Records(args Args, listKey string) ([]map[string]any, error) {
	raw, ok := args[listKey]
	if !ok || raw == nil {
		single := map[string]any{}
		for k, v := range args {
			single[k] = v
		}
		return []map[string]any{single}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		if m, ok := raw.(map[string]any); ok {
			return []map[string]any{m}, nil
		}
		return nil, fmt.Errorf("%s must be a list of records", listKey)
	}

	records := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", listKey, i)
		}
		records = append(records, m)
	}
	return records, nil
}
