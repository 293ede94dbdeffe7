package workflow

import (
	"encoding/json"
	"fmt"
)

// Memory is the inter-step blackboard: a key-value map each completed step
// may add to or overwrite, never delete from, for the life of the run.
type Memory map[string]any

// Merge returns a copy of m with patch applied as a shallow merge.
// New keys win on conflict; existing keys are never removed.
func (m Memory) Merge(patch Memory) Memory {
	out := make(Memory, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Decode extracts the value stored under key into v via a JSON round trip,
// so steps can read upstream results as typed shapes regardless of whether
// the memory came from the store (raw maps) or straight from an executor.
func (m Memory) Decode(key string, v any) error {
	raw, ok := m[key]
	if !ok {
		return fmt.Errorf("memory key %q not set", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode memory key %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode memory key %q: %w", key, err)
	}
	return nil
}

// Has reports whether key is present.
func (m Memory) Has(key string) bool {
	_, ok := m[key]
	return ok
}
