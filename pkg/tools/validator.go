package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result is the outcome of validating one tool call.
type Result struct {
	Valid     bool
	Sanitized map[string]any
	Err       string
}

// ErrToolNotAllowed is the message prefix for calls naming a tool outside
// the registry. The executor's failure classifier treats it as permanent.
const ErrToolNotAllowed = "Tool not allowed"

var shortColor = regexp.MustCompile(`^#[0-9a-fA-F]{3}$`)
var longColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate sanitizes and validates raw tool arguments. Sanitization trims
// strings, normalizes colors, coerces stringly-typed numbers and booleans,
// drops unknown fields, and applies declared defaults; validation then runs
// the generated JSON schema. The returned error strings are stable: the
// failure classifier matches on their prefixes.
func (r *Registry) Validate(tool string, rawArgs json.RawMessage) Result {
	spec, ok := r.specs[tool]
	if !ok {
		return Result{Err: fmt.Sprintf("%s: %q", ErrToolNotAllowed, tool)}
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return Result{Err: fmt.Sprintf("Validation failed for %s: arguments are not a JSON object: %v", tool, err)}
		}
	}

	sanitized := sanitizeObject(args, spec.Fields)

	for _, f := range spec.Fields {
		if f.Required {
			if _, ok := sanitized[f.Name]; !ok {
				return Result{Err: fmt.Sprintf("Validation failed for %s: missing required field %q", tool, f.Name)}
			}
		}
	}

	if err := spec.schema.Validate(toJSONValue(sanitized)); err != nil {
		return Result{Err: fmt.Sprintf("Validation failed for %s: %v", tool, err)}
	}

	return Result{Valid: true, Sanitized: sanitized}
}

// sanitizeObject applies per-field sanitization and drops keys not in the
// declaration. Empty strings count as absent so defaults and required
// checks behave predictably.
func sanitizeObject(in map[string]any, fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, present := in[f.Name]
		if !present || v == nil {
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		cleaned, ok := sanitizeValue(v, f)
		if !ok {
			// Keep the raw value; schema validation reports the precise error.
			out[f.Name] = v
			continue
		}
		if s, isStr := cleaned.(string); isStr && s == "" {
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		out[f.Name] = cleaned
	}
	return out
}

func sanitizeValue(v any, f Field) (any, bool) {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return v, false
		}
		s = strings.TrimSpace(s)
		if f.Color {
			return normalizeColor(s), true
		}
		return s, true

	case TypeNumber, TypeInteger:
		switch n := v.(type) {
		case float64:
			return n, true
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return parsed, true
			}
		}
		return v, false

	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "1", "yes":
				return true, true
			case "false", "0", "no":
				return false, true
			}
		}
		return v, false

	case TypeArray:
		list, ok := v.([]any)
		if !ok {
			return v, false
		}
		if len(f.Items) == 0 {
			// Array of strings: trim each element.
			out := make([]any, 0, len(list))
			for _, el := range list {
				if s, ok := el.(string); ok {
					out = append(out, strings.TrimSpace(s))
				} else {
					out = append(out, el)
				}
			}
			return out, true
		}
		out := make([]any, 0, len(list))
		for _, el := range list {
			obj, ok := el.(map[string]any)
			if !ok {
				out = append(out, el)
				continue
			}
			out = append(out, sanitizeObject(obj, f.Items))
		}
		return out, true
	}
	return v, true
}

// normalizeColor lowercases color strings and expands #rgb to #rrggbb.
// Non-hex values pass through unchanged.
func normalizeColor(s string) string {
	s = strings.ToLower(s)
	if shortColor.MatchString(s) {
		return fmt.Sprintf("#%c%c%c%c%c%c", s[1], s[1], s[2], s[2], s[3], s[3])
	}
	if longColor.MatchString(s) {
		return s
	}
	return s
}

// toJSONValue normalizes Go values into the decoded-JSON shapes the schema
// validator expects (int defaults become float64, nested maps stay as-is).
func toJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONValue(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
