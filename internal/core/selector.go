package core

import (
	"encoding/json"
	"strings"
)

// ParseEndpoints turns the configured endpoint-list string into a slice
// of normalized base URLs. Three shapes are tolerated, tried in order:
//
//  1. a JSON array: ["http://a", "http://b"]
//  2. a bracket-wrapped single URL that is not valid JSON: [http://a]
//  3. a comma-separated list or single bare URL: http://a, http://b
//
// Malformed input degrades to the next shape rather than erroring out.
func ParseEndpoints(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var parsed []string
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return normalizeEndpoints(parsed)
		}
		// Bracket-wrapped but not JSON, e.g. [http://printer:3000].
		inner := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		return normalizeEndpoints(strings.Split(inner, ","))
	}

	return normalizeEndpoints(strings.Split(raw, ","))
}

func normalizeEndpoints(in []string) []string {
	var out []string
	for _, e := range in {
		e = strings.TrimSpace(e)
		e = strings.Trim(e, `"'`)
		e = strings.TrimRight(e, "/")
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Selector maps a 1-based printer index onto the configured backends by
// modulo cycling, so indices past the configured count wrap around.
type Selector struct {
	endpoints []string
}

func NewSelector(raw string) *Selector {
	return &Selector{endpoints: ParseEndpoints(raw)}
}

func (s *Selector) Count() int {
	return len(s.endpoints)
}

// Resolve returns the endpoint for printerIndex, or "" when no endpoints
// are configured. Indices below 1 are treated as 1.
func (s *Selector) Resolve(printerIndex int) string {
	if len(s.endpoints) == 0 {
		return ""
	}
	if printerIndex < 1 {
		printerIndex = 1
	}
	return s.endpoints[(printerIndex-1)%len(s.endpoints)]
}
