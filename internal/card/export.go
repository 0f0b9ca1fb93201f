package card

import (
	"fmt"
	"time"
)

const (
	// SpecName is the card spec identifier SillyTavern expects on import.
	SpecName = "chara_card_v3"
	// SpecVersion is the card spec revision exported by this service.
	SpecVersion = "3.0"
)

// Export renders the card in the exact shape SillyTavern imports: legacy
// top-level fields plus the spec-versioned "data" object.
func Export(c *Card, now time.Time) map[string]any {
	data := map[string]any{
		"name":                      c.Name,
		"description":               c.Description,
		"personality":               c.Personality,
		"scenario":                  c.Scenario,
		"first_mes":                 c.FirstMes,
		"mes_example":               c.MesExample,
		"creator_notes":             c.CreatorNotes,
		"system_prompt":             c.SystemPrompt,
		"post_history_instructions": c.PostHistoryInstructions,
		"alternate_greetings":       c.AlternateGreetings,
		"tags":                      c.Tags,
		"creator":                   c.Creator,
		"character_version":         c.CharacterVersion,
		"extensions":                c.Extensions,
	}
	if c.CharacterBook != nil {
		data["character_book"] = c.CharacterBook
	}

	return map[string]any{
		"name":           c.Name,
		"description":    c.Description,
		"personality":    c.Personality,
		"first_mes":      c.FirstMes,
		"avatar":         "none",
		"mes_example":    c.MesExample,
		"scenario":       c.Scenario,
		"create_date":    exportTimestamp(now),
		"talkativeness":  "0.5",
		"fav":            false,
		"creatorcomment": "",
		"spec":           SpecName,
		"spec_version":   SpecVersion,
		"data":           data,
		"tags":           c.Tags,
	}
}

// exportTimestamp matches SillyTavern's create_date format, e.g.
// "2024-05-01 @13h 07m 09s 042ms".
func exportTimestamp(now time.Time) string {
	now = now.UTC()
	ms := now.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s %03dms", now.Format("2006-01-02 @15h 04m 05s"), ms)
}
