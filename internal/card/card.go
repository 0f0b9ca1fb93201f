package card

import (
	"fmt"
	"strings"
)

// LorebookEntry is a single keyed lore snippet inside a character book.
// Enabled is a pointer so an absent key can be told apart from an explicit
// false; entries default to enabled.
type LorebookEntry struct {
	Keys           []string       `json:"keys"`
	Content        string         `json:"content"`
	Extensions     map[string]any `json:"extensions"`
	Enabled        *bool          `json:"enabled"`
	InsertionOrder int            `json:"insertion_order"`
	Constant       *bool          `json:"constant,omitempty"`
	CaseSensitive  *bool          `json:"case_sensitive,omitempty"`
	Name           string         `json:"name,omitempty"`
	Priority       *int           `json:"priority,omitempty"`
	ID             any            `json:"id,omitempty"`
	Comment        string         `json:"comment,omitempty"`
	Selective      *bool          `json:"selective,omitempty"`
	SecondaryKeys  []string       `json:"secondary_keys,omitempty"`
	Position       string         `json:"position,omitempty"`
	UseRegex       *bool          `json:"use_regex,omitempty"`
}

// Lorebook is the optional character book attached to a card.
type Lorebook struct {
	Name              string          `json:"name,omitempty"`
	Description       string          `json:"description,omitempty"`
	ScanDepth         *int            `json:"scan_depth,omitempty"`
	TokenBudget       *int            `json:"token_budget,omitempty"`
	RecursiveScanning *bool           `json:"recursive_scanning,omitempty"`
	Extensions        map[string]any  `json:"extensions"`
	Entries           []LorebookEntry `json:"entries"`
}

// Card holds the core character definition produced by a generation backend.
type Card struct {
	Name                    string         `json:"name"`
	Description             string         `json:"description"`
	Personality             string         `json:"personality"`
	Scenario                string         `json:"scenario"`
	FirstMes                string         `json:"first_mes"`
	MesExample              string         `json:"mes_example"`
	CreatorNotes            string         `json:"creator_notes"`
	SystemPrompt            string         `json:"system_prompt"`
	PostHistoryInstructions string         `json:"post_history_instructions"`
	AlternateGreetings      []string       `json:"alternate_greetings"`
	CharacterBook           *Lorebook      `json:"character_book"`
	Tags                    []string       `json:"tags"`
	Creator                 string         `json:"creator"`
	CharacterVersion        string         `json:"character_version"`
	Extensions              map[string]any `json:"extensions"`
}

// Normalize fills collection fields so downstream serialization never emits
// JSON null where SillyTavern expects an array or object.
func (c *Card) Normalize() {
	if c == nil {
		return
	}
	if c.AlternateGreetings == nil {
		c.AlternateGreetings = []string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Extensions == nil {
		c.Extensions = map[string]any{}
	}
	if c.CharacterBook != nil {
		if c.CharacterBook.Extensions == nil {
			c.CharacterBook.Extensions = map[string]any{}
		}
		if c.CharacterBook.Entries == nil {
			c.CharacterBook.Entries = []LorebookEntry{}
		}
		for i := range c.CharacterBook.Entries {
			entry := &c.CharacterBook.Entries[i]
			if entry.Extensions == nil {
				entry.Extensions = map[string]any{}
			}
			if entry.Enabled == nil {
				enabled := true
				entry.Enabled = &enabled
			}
		}
	}
}

// Validate ensures the card satisfies the required contract before export.
func (c Card) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", c.Name},
		{"description", c.Description},
		{"personality", c.Personality},
		{"scenario", c.Scenario},
		{"first_mes", c.FirstMes},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.field)
		}
	}
	return nil
}
