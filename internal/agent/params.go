package agent

// Param helpers: step inputs arrive as decoded JSON, so numbers are float64
// and everything needs a default when the planner leaves it out.

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
