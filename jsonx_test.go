package taskory_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		goal  string
	}{
		{
			name:  "direct object",
			input: `{"goal": "direct"}`,
			goal:  "direct",
		},
		{
			name:  "fenced json block",
			input: "Here is the plan:\n```json\n{\"goal\": \"fenced\"}\n```\nLet me know.",
			goal:  "fenced",
		},
		{
			name:  "fence without language tag",
			input: "```\n{\"goal\": \"plain fence\"}\n```",
			goal:  "plain fence",
		},
		{
			name:  "prose wrapped object",
			input: `Sure! The plan is {"goal": "wrapped"} as requested.`,
			goal:  "wrapped",
		},
		{
			name:  "braces inside string literals",
			input: `{"goal": "keep {this} intact"}`,
			goal:  "keep {this} intact",
		},
		{
			name:  "truncated after complete value",
			input: `{"goal": "cut off", "steps": [{"id": "t1", "description": "do the thing"}`,
			goal:  "cut off",
		},
		{
			name:  "trailing comma before truncation",
			input: `{"goal": "partial", "steps": [],`,
			goal:  "partial",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := taskory.ExtractJSON(tc.input)
			gt.NoError(t, err)

			var decoded struct {
				Goal string `json:"goal"`
			}
			gt.NoError(t, json.Unmarshal(raw, &decoded))
			gt.Equal(t, decoded.Goal, tc.goal)
		})
	}
}

func TestExtractJSONFailure(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "no object at all", input: "I cannot produce a plan for that."},
		{name: "empty input", input: ""},
		{name: "only an array", input: `[1, 2, 3]`},
		{name: "unclosed string literal", input: `{"goal": "never ends`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := taskory.ExtractJSON(tc.input)
			gt.Error(t, err)
		})
	}
}
