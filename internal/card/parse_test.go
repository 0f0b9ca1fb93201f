package card

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const validCardJSON = `{
	"name": "林小霞",
	"description": "夜市擺攤的年輕老闆娘",
	"personality": "爽朗、嘴硬心軟",
	"scenario": "台北寧夏夜市的滷味攤",
	"first_mes": "「欸，要吃什麼自己夾啦！」",
	"mes_example": "<START>{{user}}: 老闆娘推薦什麼？",
	"creator_notes": "",
	"system_prompt": "",
	"post_history_instructions": "",
	"creator": "cardforge",
	"character_version": "1.0",
	"tags": ["原創", "夜市"],
	"alternate_greetings": [],
	"character_book": null,
	"extensions": {}
}`

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare_json", input: `{"name":"a"}`, want: `{"name":"a"}`},
		{name: "json_fence", input: "```json\n{\"name\":\"a\"}\n```", want: `{"name":"a"}`},
		{name: "plain_fence", input: "```\n{\"name\":\"a\"}\n```", want: `{"name":"a"}`},
		{name: "leading_prose", input: "好的，以下是結果：\n{\"name\":\"a\"}", want: `{"name":"a"}`},
		{name: "no_json", input: "抱歉，我無法處理", want: "抱歉，我無法處理"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tc.input); got != tc.want {
				t.Fatalf("ExtractJSON = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseValidCard(t *testing.T) {
	c, err := Parse("```json\n" + validCardJSON + "\n```")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if c.Name != "林小霞" {
		t.Fatalf("Name = %q, want %q", c.Name, "林小霞")
	}
	if len(c.Tags) != 2 {
		t.Fatalf("Tags = %v, want 2 entries", c.Tags)
	}
	if c.Extensions == nil || c.AlternateGreetings == nil {
		t.Fatal("Normalize did not fill collection fields")
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := Parse("not json at all"); err == nil {
		t.Fatal("Parse succeeded on non-JSON input")
	}
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	input := strings.Replace(validCardJSON, `"name": "林小霞"`, `"name": ""`, 1)
	_, err := Parse(input)
	if err == nil {
		t.Fatal("Parse succeeded with empty name")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("error = %v, want mention of required name", err)
	}
}

func TestParseRequiresSchemaKeys(t *testing.T) {
	t.Parallel()
	for _, field := range []string{"mes_example", "creator_notes", "system_prompt", "post_history_instructions", "creator", "character_version"} {
		field := field
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			var doc map[string]any
			if err := json.Unmarshal([]byte(validCardJSON), &doc); err != nil {
				t.Fatalf("unmarshal fixture: %v", err)
			}
			delete(doc, field)
			payload, err := json.Marshal(doc)
			if err != nil {
				t.Fatalf("marshal fixture: %v", err)
			}
			_, err = Parse(string(payload))
			if err == nil {
				t.Fatalf("Parse succeeded without %s", field)
			}
			if !strings.Contains(err.Error(), field+" is required") {
				t.Fatalf("error = %v, want mention of %s", err, field)
			}
		})
	}
}

func TestParseDefaultsLorebookEnabled(t *testing.T) {
	book := `"character_book": {
		"name": "夜市見聞",
		"entries": [
			{"keys": ["滷味"], "content": "招牌是百頁豆腐"},
			{"keys": ["打烊"], "content": "凌晨一點收攤", "enabled": false}
		]
	}`
	input := strings.Replace(validCardJSON, `"character_book": null`, book, 1)

	c, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	entries := c.CharacterBook.Entries
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Enabled == nil || !*entries[0].Enabled {
		t.Fatal("entry without enabled key should default to enabled")
	}
	if entries[1].Enabled == nil || *entries[1].Enabled {
		t.Fatal("explicit enabled:false must survive normalization")
	}

	data, err := json.Marshal(c.CharacterBook)
	if err != nil {
		t.Fatalf("marshal character book: %v", err)
	}
	if !strings.Contains(string(data), `"enabled":true`) {
		t.Fatalf("serialized book = %s, want enabled:true on the defaulted entry", data)
	}
}

func TestExportShape(t *testing.T) {
	c, err := Parse(validCardJSON)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	now := time.Date(2026, 5, 1, 13, 7, 9, 42_000_000, time.UTC)
	out := Export(c, now)

	if out["spec"] != SpecName || out["spec_version"] != SpecVersion {
		t.Fatalf("spec = %v/%v, want %s/%s", out["spec"], out["spec_version"], SpecName, SpecVersion)
	}
	if out["avatar"] != "none" {
		t.Fatalf("avatar = %v, want none", out["avatar"])
	}
	if out["create_date"] != "2026-05-01 @13h 07m 09s 042ms" {
		t.Fatalf("create_date = %v", out["create_date"])
	}
	data, ok := out["data"].(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", out["data"])
	}
	if data["name"] != "林小霞" {
		t.Fatalf("data.name = %v", data["name"])
	}
	if _, present := data["character_book"]; present {
		t.Fatal("nil character_book should be omitted from data")
	}
}
