package ai

import (
	"encoding/json"
	"strings"
)

// stripCodeFence removes a wrapping ``` or ```json fence. Models routinely
// fence their JSON even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeResponse parses a stage response into out, tolerating code fences.
func decodeResponse(stage, raw string, out any) error {
	clean := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return &MalformedResponseError{Stage: stage, Raw: raw, Err: err}
	}
	return nil
}

// clampConfidence forces a model-reported score into the 0-100 range.
func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
