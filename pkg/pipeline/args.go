package pipeline

// Helpers over sanitized tool arguments. The validator has already coerced
// types, so a missing or mistyped key reads as the zero value here.

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func numArg(args map[string]any, key string) (float64, bool) {
	n, ok := args[key].(float64)
	return n, ok
}

func intArg(args map[string]any, key string, fallback int) int {
	if n, ok := args[key].(float64); ok {
		return int(n)
	}
	return fallback
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}

func objListArg(args map[string]any, key string) []map[string]any {
	list, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func strListArg(args map[string]any, key string) []string {
	list, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
