// ABOUTME: Parsing helpers for model output: fence stripping and proposal decoding.
package stages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// proposal is the JSON shape the discovery prompt asks for.
type proposal struct {
	Locator string `json:"locator"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

// parseProposal decodes the discovery reply, tolerating markdown fences and
// prose around the JSON object.
func parseProposal(text string) (proposal, error) {
	text = StripFences(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return proposal{}, fmt.Errorf("no JSON object in reply")
	}

	var p proposal
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return proposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	if p.Locator == "" {
		return proposal{}, fmt.Errorf("proposal has no locator")
	}
	return p, nil
}

// StripFences removes a wrapping markdown code fence, with or without a
// language tag. Text without fences passes through trimmed.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	// Drop the opening fence line (``` or ```python).
	lines = lines[1:]
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			lines = append(lines[:i], lines[i+1:]...)
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
