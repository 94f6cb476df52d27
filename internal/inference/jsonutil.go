// internal/inference/jsonutil.go
package inference

import (
	"regexp"
	"strings"
)

var (
	// fenced ```json { ... } ``` block
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// greedy fallback for a bare object
	jsonObjectPattern    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls the JSON object out of a model reply. Replies in JSON
// mode are usually clean; some providers behind a compatible base URL still
// wrap them in markdown fences or leave trailing commas.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	raw := ""
	if matches := jsonBlockPattern.FindStringSubmatch(content); len(matches) > 1 {
		raw = matches[1]
	} else if match := jsonObjectPattern.FindString(content); match != "" {
		raw = match
	}
	if raw == "" {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}
