package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidResponse indicates the backend output could not be turned into a
// valid card. Wrapped errors carry the specific cause.
var ErrInvalidResponse = errors.New("card: invalid model response")

var (
	codeFencePattern  = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON pulls the first JSON document out of raw model output. Models
// routinely wrap their answer in Markdown code fences or leading prose, so
// the fenced block wins, then the first brace-delimited region, then the
// text as-is.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := jsonObjectPattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return text
}

// requiredFields lists every key the card schema demands. A key must be
// present in the model output; string fields outside the narrative core may
// be empty but not absent.
var requiredFields = []string{
	"name",
	"description",
	"personality",
	"scenario",
	"first_mes",
	"mes_example",
	"creator_notes",
	"system_prompt",
	"post_history_instructions",
	"creator",
	"character_version",
}

// Parse decodes raw model output into a normalized Card, validating the
// required fields.
func Parse(raw string) (*Card, error) {
	payload := ExtractJSON(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("%w: output is not valid JSON: %v", ErrInvalidResponse, err)
	}
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidResponse, name)
		}
	}
	var c Card
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("%w: output does not match the card schema: %v", ErrInvalidResponse, err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &c, nil
}
